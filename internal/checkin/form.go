package checkin

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const maxFieldLength = 50

var (
	genders     = []string{"Male", "Female"}
	races       = []string{"white", "black", "indian", "asian", "pacific Is.", "other"}
	ethnicities = []string{"not_hispanic", "hispanic"}
	languages   = []string{"eng", "spa", "man", "ara", "hin"}
)

// ValidationError names the first form field that failed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Name is what the patient types at the kiosk.
type Name struct {
	First string `json:"first_name"`
	Last  string `json:"last_name"`
}

func (n Name) Validate() error {
	if err := requiredText("first_name", n.First); err != nil {
		return err
	}
	return requiredText("last_name", n.Last)
}

// Demographics is the confirm form, pre-filled from the patient record.
type Demographics struct {
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Email             string `json:"email"`
	Gender            string `json:"gender"`
	Race              string `json:"race"`
	Ethnicity         string `json:"ethnicity"`
	PreferredLanguage string `json:"preferred_language"`
}

func (d Demographics) Validate() error {
	checks := []error{
		requiredText("first_name", d.FirstName),
		requiredText("last_name", d.LastName),
		requiredText("email", d.Email),
		oneOf("gender", d.Gender, genders),
		oneOf("race", d.Race, races),
		oneOf("ethnicity", d.Ethnicity, ethnicities),
		oneOf("preferred_language", d.PreferredLanguage, languages),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

// Fields is the full overwrite sent to the directory on confirm.
func (d Demographics) Fields() map[string]any {
	return map[string]any{
		"first_name":         d.FirstName,
		"last_name":          d.LastName,
		"email":              d.Email,
		"gender":             d.Gender,
		"race":               d.Race,
		"ethnicity":          d.Ethnicity,
		"preferred_language": d.PreferredLanguage,
	}
}

func requiredText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	if utf8.RuneCountInString(value) > maxFieldLength {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", maxFieldLength)}
	}
	return nil
}

func oneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{Field: field, Message: fmt.Sprintf("must be one of %s", strings.Join(allowed, ", "))}
}
