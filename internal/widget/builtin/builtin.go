// Package builtin provides the widget handlers shipped with the platform.
package builtin

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/deep/internal/widget"
)

// ErrInvalidValue indicates an attribute value that cannot be derived.
var ErrInvalidValue = errors.New("invalid attribute value")

const (
	dateLayout       = "2006-01-02"
	exportDateLayout = "02-01-2006"
	secondsPerDay    = 24 * 60 * 60
)

// Handlers returns one handler per built-in widget type.
func Handlers() []widget.Handler {
	return []widget.Handler{
		DateWidget{},
		DateRangeWidget{},
		TimeWidget{},
		NumberWidget{},
		ScaleWidget{},
		SelectWidget{},
		MultiselectWidget{},
		GeoWidget{},
		OrganigramWidget{},
		Matrix1DWidget{},
		Matrix2DWidget{},
		NumberMatrixWidget{},
	}
}

// Registry builds the process-wide registry of built-in handlers.
func Registry() *widget.Registry {
	return widget.NewRegistry(Handlers()...)
}

// decode unmarshals raw into v. Empty input leaves v untouched.
func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// decodeValue unmarshals an attribute value, wrapping failures in ErrInvalidValue.
func decodeValue(widgetType string, raw json.RawMessage, v any) error {
	if err := decode(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, widgetType, err)
	}
	return nil
}

// parseDate parses a yyyy-mm-dd date. An empty string yields nil.
func parseDate(widgetType, s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, widgetType, err)
	}
	return &t, nil
}

// epochDays returns the number of whole days between the Unix epoch and t.
func epochDays(t time.Time) int64 {
	return t.Unix() / secondsPerDay
}

// excelTitle is the exportable declaration shared by single-column widgets.
func excelTitle(title string) *widget.ExportableDecl {
	return &widget.ExportableDecl{
		Data: map[string]any{
			"excel": map[string]any{"title": title},
		},
	}
}

// excelValue wraps a single export value.
func excelValue(v any) map[string]any {
	return map[string]any{
		"excel": map[string]any{"value": v},
	}
}

// option is a keyed, labelled choice used by select, multiselect and scale widgets.
type option struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

func optionLabels(opts []option) map[string]string {
	labels := make(map[string]string, len(opts))
	for _, o := range opts {
		labels[o.Key] = o.Label
	}
	return labels
}

func optionList(opts []option) []map[string]any {
	list := make([]map[string]any, 0, len(opts))
	for _, o := range opts {
		list = append(list, map[string]any{"key": o.Key, "label": o.Label})
	}
	return list
}
