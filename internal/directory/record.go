package directory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is one resource as the directory returns it. Fields are kept verbatim
// so callers can pass them through untouched; numbers decode as json.Number.
type Record map[string]any

// Int reads an integer field. The directory sends some ids as strings.
func (r Record) Int(key string) (int64, bool) {
	return toInt(r[key])
}

func (r Record) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Decode converts the record into a typed view.
func (r Record) Decode(v any) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	case float64:
		i := int64(n)
		return i, float64(i) == n
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// ID is an integer identifier that tolerates the string form.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	n, ok := toInt(v)
	if !ok {
		return fmt.Errorf("directory: %s is not an integer id", b)
	}
	*id = ID(n)
	return nil
}

type Appointment struct {
	ID            ID     `json:"id"`
	Patient       ID     `json:"patient"`
	Doctor        ID     `json:"doctor"`
	Status        string `json:"status"`
	ScheduledTime string `json:"scheduled_time"`
}

type Patient struct {
	ID                ID     `json:"id"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Email             string `json:"email"`
	Gender            string `json:"gender"`
	Race              string `json:"race"`
	Ethnicity         string `json:"ethnicity"`
	PreferredLanguage string `json:"preferred_language"`
}

type Doctor struct {
	ID        ID     `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Specialty string `json:"specialty"`
}
