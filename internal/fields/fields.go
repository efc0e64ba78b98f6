// Package fields derives the recipient and the custom-field set of a row.
package fields

import (
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// DispositionKey is the custom field the disposition tag is written to.
const DispositionKey = "cf_choose_your_inquiry"

// DefaultEmailColumn is used when a request names no email column.
const DefaultEmailColumn = "email"

// DefaultIgnore lists columns never copied into custom fields.
var DefaultIgnore = []string{"company", "company_id"}

// ErrMissingEmail marks a row whose email cell is blank.
var ErrMissingEmail = errors.New("no email")

// Resolver is built once per batch and applied to every row.
type Resolver struct {
	emailColumn string
	ignore      map[string]struct{}
	extra       map[string]any
	disposition string
}

// Options configure a Resolver.
type Options struct {
	EmailColumn string
	Ignore      []string
	// ExtraFieldsJSON is request-level JSON merged over row columns.
	ExtraFieldsJSON string
	// Disposition is written to DispositionKey when non-empty.
	Disposition string
}

// NewResolver parses the extra-fields JSON once. Invalid JSON, or JSON
// that is not an object, is logged and treated as absent.
func NewResolver(opts Options, logger *zap.Logger) *Resolver {
	col := opts.EmailColumn
	if col == "" {
		col = DefaultEmailColumn
	}
	ignore := make(map[string]struct{}, len(opts.Ignore))
	for _, c := range opts.Ignore {
		ignore[c] = struct{}{}
	}
	return &Resolver{
		emailColumn: col,
		ignore:      ignore,
		extra:       ParseExtra(opts.ExtraFieldsJSON, logger),
		disposition: strings.TrimSpace(opts.Disposition),
	}
}

// ParseExtra decodes a JSON object of extra custom fields. Blank input
// yields nil silently; anything unparseable yields nil with a warning.
func ParseExtra(raw string, logger *zap.Logger) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		if logger != nil {
			logger.Warn("ignoring invalid extra custom fields JSON", zap.Error(err), zap.Int("length", len(raw)))
		}
		return nil
	}
	return out
}

// Email returns the trimmed recipient of a row or ErrMissingEmail.
func (r *Resolver) Email(values map[string]string) (string, error) {
	email := strings.TrimSpace(values[r.emailColumn])
	if email == "" {
		return "", ErrMissingEmail
	}
	return email, nil
}

// CustomFields merges, lowest precedence first: non-empty row columns
// other than the email and ignored columns, the extra-fields object, and
// the disposition tag.
func (r *Resolver) CustomFields(values map[string]string) map[string]any {
	out := make(map[string]any, len(values)+len(r.extra)+1)
	for k, v := range values {
		if k == r.emailColumn {
			continue
		}
		if _, skip := r.ignore[k]; skip {
			continue
		}
		if strings.TrimSpace(v) == "" {
			continue
		}
		out[k] = v
	}
	for k, v := range r.extra {
		out[k] = v
	}
	if r.disposition != "" {
		out[DispositionKey] = r.disposition
	}
	return out
}
