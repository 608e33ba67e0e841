// Package schema checks that a configured workspace (database schema) exists
// in a remote PostGIS database before the setting is accepted.
package schema

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds the connection attempt and both catalog queries.
	DefaultTimeout = 5 * time.Second

	// maxSchemaHints caps the listing returned when the schema is missing.
	maxSchemaHints = 10
)

// Params are the connection parameters and the schema name to check. They are
// the candidate values from a settings update, not necessarily what is
// currently persisted.
type Params struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	Schema   string
}

// Result is the outcome of a validation run. Validate never fails with an
// error: connectivity problems, a missing schema and unexpected failures are
// all reported here, because the check doubles as an interactive pre-flight.
type Result struct {
	Exists    bool     `json:"exists"`
	Message   string   `json:"message"`
	Schema    string   `json:"workspace"`
	Available []string `json:"available_schemas,omitempty"`
}

// catalog is the minimal view of a database catalog the validator needs.
// Production uses a pgx-backed implementation; tests inject fakes.
type catalog interface {
	SchemaExists(ctx context.Context, schema string) (bool, error)
	ListSchemas(ctx context.Context, limit int) ([]string, error)
	Close(ctx context.Context) error
}

// DialFunc opens a catalog connection for the given parameters.
type DialFunc func(ctx context.Context, p Params) (catalog, error)

// Validator runs workspace existence checks against remote databases.
type Validator struct {
	timeout time.Duration
	dial    DialFunc
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithTimeout overrides the per-run deadline.
func WithTimeout(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		v.timeout = d
	}
}

// WithDial overrides the catalog connection function (for testing).
func WithDial(dial DialFunc) ValidatorOption {
	return func(v *Validator) {
		v.dial = dial
	}
}

// NewValidator creates a Validator with the default pgx-backed dialer.
func NewValidator(options ...ValidatorOption) *Validator {
	v := &Validator{
		timeout: DefaultTimeout,
		dial:    dialPostgres,
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// Validate connects with the candidate credentials and reports whether the
// schema exists. On non-existence the result carries up to ten available
// schema names as a hint. The connection is short-lived and released on every
// exit path; the password never appears in any message.
func (v *Validator) Validate(ctx context.Context, p Params) Result {
	if p.Schema == "" {
		return Result{
			Exists:  false,
			Schema:  p.Schema,
			Message: "no workspace name given",
		}
	}
	if p.Host == "" || p.Port == 0 || p.Database == "" || p.User == "" || p.Password == "" {
		return Result{
			Exists:  false,
			Schema:  p.Schema,
			Message: "database connection parameters missing for workspace validation",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cat, err := v.dial(ctx, p)
	if err != nil {
		return Result{
			Exists: false,
			Schema: p.Schema,
			Message: fmt.Sprintf(
				"could not connect to database: host=%s port=%d database=%s: %s",
				p.Host, p.Port, p.Database, sanitize(err, p.Password)),
		}
	}
	defer cat.Close(ctx)

	exists, err := cat.SchemaExists(ctx, p.Schema)
	if err != nil {
		return Result{
			Exists:  false,
			Schema:  p.Schema,
			Message: fmt.Sprintf("schema check failed: %s", sanitize(err, p.Password)),
		}
	}

	if exists {
		return Result{
			Exists:  true,
			Schema:  p.Schema,
			Message: fmt.Sprintf("schema %q exists in database %q", p.Schema, p.Database),
		}
	}

	result := Result{
		Exists: false,
		Schema: p.Schema,
		Message: fmt.Sprintf("schema %q does not exist in database %q on host %q",
			p.Schema, p.Database, p.Host),
	}

	// Best effort: a hint listing helps interactive configuration, but its
	// failure must not mask the existence answer.
	available, err := cat.ListSchemas(ctx, maxSchemaHints)
	if err == nil && len(available) > 0 {
		if len(available) > maxSchemaHints {
			available = available[:maxSchemaHints]
		}
		result.Available = available
		result.Message += ", available schemas: " + strings.Join(available, ", ")
	}
	return result
}

// sanitize keeps the password out of driver error text.
func sanitize(err error, password string) string {
	msg := err.Error()
	if password != "" {
		msg = strings.ReplaceAll(msg, password, "***")
	}
	return msg
}

// connString builds a pgx connection string. Values are URL-escaped because
// passwords are not guaranteed to be alphanumeric.
func connString(p Params, timeout time.Duration) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?connect_timeout=%d",
		url.QueryEscape(p.User),
		url.QueryEscape(p.Password),
		p.Host, p.Port,
		url.PathEscape(p.Database),
		int(timeout.Seconds()),
	)
}
