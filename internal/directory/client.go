package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/kiosk-checkin/internal/auth"
	"github.com/hackgods/kiosk-checkin/internal/observability/metrics"
)

var tracer = otel.Tracer("kiosk.internal.directory")

var ErrNotFound = errors.New("directory: record not found")

// RemoteError is a non-2xx answer from the directory.
type RemoteError struct {
	Resource string
	Method   string
	Status   int
	Body     string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("directory: %s %s failed (status %d): %s", e.Method, e.Resource, e.Status, e.Body)
}

// IsRemote reports whether err came from talking to the directory: a non-2xx
// answer or a transport failure.
func IsRemote(err error) bool {
	var remote *RemoteError
	var transport *url.Error
	return errors.As(err, &remote) || errors.As(err, &transport)
}

// Resource is the view of one directory collection the services depend on.
type Resource interface {
	List(ctx context.Context, filter url.Values) ([]Record, error)
	Fetch(ctx context.Context, id int64) (Record, error)
	Update(ctx context.Context, id int64, fields map[string]any) error
}

type Config struct {
	BaseURL string // e.g. https://app.drchrono.com
	Timeout time.Duration
}

// Client talks to the drchrono REST API. Every request carries a bearer
// token obtained from the injected TokenProvider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     auth.TokenProvider
	metrics    *metrics.KioskMetrics
}

func New(cfg Config, tokens auth.TokenProvider, m *metrics.KioskMetrics) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("directory: BaseURL is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("directory: token provider is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		metrics:    m,
	}, nil
}

func (c *Client) Appointments() *Endpoint { return &Endpoint{client: c, resource: "appointments"} }
func (c *Client) Patients() *Endpoint     { return &Endpoint{client: c, resource: "patients"} }
func (c *Client) Doctors() *Endpoint      { return &Endpoint{client: c, resource: "doctors"} }

// Endpoint is one REST collection, e.g. /api/patients.
type Endpoint struct {
	client   *Client
	resource string
}

type page struct {
	Results []Record `json:"results"`
	Next    *string  `json:"next"`
}

// List returns every record matching filter, following pagination to the end.
func (e *Endpoint) List(ctx context.Context, filter url.Values) ([]Record, error) {
	ctx, span := tracer.Start(ctx, "directory.list")
	defer span.End()
	span.SetAttributes(attribute.String("directory.resource", e.resource))

	target := e.collectionURL()
	if len(filter) > 0 {
		target += "?" + filter.Encode()
	}

	var out []Record
	seen := map[string]bool{}
	for target != "" && !seen[target] {
		seen[target] = true

		var p page
		if err := e.client.do(ctx, e.resource, http.MethodGet, target, nil, &p); err != nil {
			span.RecordError(err)
			return nil, err
		}
		out = append(out, p.Results...)

		target = ""
		if p.Next != nil {
			target = *p.Next
		}
	}

	span.SetAttributes(attribute.Int("directory.results", len(out)))
	return out, nil
}

func (e *Endpoint) Fetch(ctx context.Context, id int64) (Record, error) {
	ctx, span := tracer.Start(ctx, "directory.fetch")
	defer span.End()
	span.SetAttributes(
		attribute.String("directory.resource", e.resource),
		attribute.Int64("directory.id", id),
	)

	var rec Record
	err := e.client.do(ctx, e.resource, http.MethodGet, e.itemURL(id), nil, &rec)
	if err != nil {
		var remote *RemoteError
		if errors.As(err, &remote) && remote.Status == http.StatusNotFound {
			return nil, fmt.Errorf("%s %d: %w", e.resource, id, ErrNotFound)
		}
		span.RecordError(err)
		return nil, err
	}
	return rec, nil
}

// Update sends a partial update; only the given fields change.
func (e *Endpoint) Update(ctx context.Context, id int64, fields map[string]any) error {
	ctx, span := tracer.Start(ctx, "directory.update")
	defer span.End()
	span.SetAttributes(
		attribute.String("directory.resource", e.resource),
		attribute.Int64("directory.id", id),
	)

	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("directory: failed to marshal update: %w", err)
	}

	err = e.client.do(ctx, e.resource, http.MethodPatch, e.itemURL(id), body, nil)
	if err != nil {
		var remote *RemoteError
		if errors.As(err, &remote) && remote.Status == http.StatusNotFound {
			return fmt.Errorf("%s %d: %w", e.resource, id, ErrNotFound)
		}
		span.RecordError(err)
		return err
	}
	return nil
}

func (e *Endpoint) collectionURL() string {
	return fmt.Sprintf("%s/api/%s", e.client.baseURL, e.resource)
}

func (e *Endpoint) itemURL(id int64) string {
	return fmt.Sprintf("%s/api/%s/%d", e.client.baseURL, e.resource, id)
}

func (c *Client) do(ctx context.Context, resource, method, target string, body []byte, out any) error {
	tok, err := c.tokens.RefreshIfExpired(ctx)
	if err != nil {
		return fmt.Errorf("directory: authentication failed: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("directory: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveDirectory(resource, method, "error", time.Since(start).Seconds())
		return fmt.Errorf("directory: request failed: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveDirectory(resource, method, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &RemoteError{Resource: resource, Method: method, Status: resp.StatusCode, Body: string(raw)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("directory: failed to decode %s response: %w", resource, err)
	}
	return nil
}
