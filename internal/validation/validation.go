// Package validation checks user-supplied fields before they reach the store.
package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hyperengineering/deep/internal/types"
)

const (
	MaxTitleLength       = 255
	MaxKeyLength         = 100
	MaxDescriptionLength = 4000
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is a list of field failures. It implements error so callers can
// return it directly and match it with errors.As.
type Errors []ValidationError

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, v := range e {
		parts[i] = v.Field + " " + v.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// Err returns the accumulated failures as an error, or nil.
func (c *Collector) Err() error {
	if !c.HasErrors() {
		return nil
	}
	return Errors(c.errors)
}

// text runs the checks shared by every free-text field.
func (c *Collector) text(field, value string, max int) {
	c.Add(ValidateUTF8(field, value))
	c.Add(ValidateNoNullBytes(field, value))
	c.Add(ValidateMaxLength(field, value, max))
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateEnum returns an error if the value is not in the allowed list.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateKey accepts identifiers made of letters, digits, '-' and '_'.
func ValidateKey(field, value string) *ValidationError {
	if value == "" {
		return &ValidationError{Field: field, Message: "is required"}
	}
	for _, r := range value {
		if r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			continue
		}
		return &ValidationError{Field: field, Message: "may only contain letters, digits, '-' and '_'"}
	}
	return ValidateMaxLength(field, value, MaxKeyLength)
}

// ValidateJSONObject returns an error unless raw is empty or a JSON object.
func ValidateJSONObject(field string, raw json.RawMessage) *ValidationError {
	if len(raw) == 0 {
		return nil
	}
	var v map[string]any
	if err := json.Unmarshal(raw, &v); err != nil {
		return &ValidationError{Field: field, Message: "must be a JSON object"}
	}
	return nil
}

// ValidateProject checks the editable fields of a project.
func ValidateProject(p types.Project) []ValidationError {
	c := &Collector{}
	c.Add(ValidateRequired("title", p.Title))
	c.text("title", p.Title, MaxTitleLength)
	c.text("description", p.Description, MaxDescriptionLength)
	return c.Errors()
}

// ValidateFramework checks the editable fields of an analysis framework.
func ValidateFramework(f types.AnalysisFramework) []ValidationError {
	c := &Collector{}
	c.Add(ValidateRequired("title", f.Title))
	c.text("title", f.Title, MaxTitleLength)
	c.text("description", f.Description, MaxDescriptionLength)
	return c.Errors()
}

// ValidateWidget checks a widget definition. Unknown widget types are
// accepted: they are stored and simply produce no derived data.
func ValidateWidget(w types.Widget) []ValidationError {
	c := &Collector{}
	c.Add(ValidateRequired("widget_id", w.WidgetType))
	c.Add(ValidateKey("key", w.Key))
	c.Add(ValidateRequired("title", w.Title))
	c.text("title", w.Title, MaxTitleLength)
	c.Add(ValidateJSONObject("properties", w.Properties))
	return c.Errors()
}

// ValidateLead checks a submitted lead.
func ValidateLead(l types.Lead) []ValidationError {
	c := &Collector{}
	c.Add(ValidateRequired("title", l.Title))
	c.text("title", l.Title, MaxTitleLength)
	if l.SourceType != "" {
		c.Add(ValidateEnum("source_type", string(l.SourceType),
			[]string{string(types.LeadSourceText), string(types.LeadSourceWebsite)}))
	}
	if l.SourceType == types.LeadSourceWebsite {
		c.Add(ValidateRequired("url", l.URL))
	}
	c.Add(ValidateUTF8("body", l.Body))
	c.Add(ValidateNoNullBytes("body", l.Body))
	return c.Errors()
}

// ValidateEntry checks a new entry.
func ValidateEntry(e types.Entry) []ValidationError {
	c := &Collector{}
	c.Add(ValidateRequired("lead_id", e.LeadID))
	if e.EntryType != "" && !e.EntryType.Valid() {
		c.Add(ValidateEnum("entry_type", string(e.EntryType),
			[]string{string(types.EntryExcerpt), string(types.EntryImage), string(types.EntryDataSeries)}))
	}
	c.Add(ValidateUTF8("excerpt", e.Excerpt))
	c.Add(ValidateNoNullBytes("excerpt", e.Excerpt))
	return c.Errors()
}

// ValidateUserGroup checks a user group title.
func ValidateUserGroup(title string) []ValidationError {
	c := &Collector{}
	c.Add(ValidateRequired("title", title))
	c.text("title", title, MaxTitleLength)
	return c.Errors()
}

// AsError converts a validator result into an error, or nil when empty.
func AsError(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	return Errors(errs)
}
