package builtin

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/widget"
)

// TimeWidget records a time of day.
type TimeWidget struct{}

func (TimeWidget) Type() string { return "timeWidget" }

func (TimeWidget) Filters(w types.Widget, _ json.RawMessage) ([]widget.FilterDecl, error) {
	return []widget.FilterDecl{{
		FilterType: types.FilterNumber,
		Properties: map[string]any{"type": "time"},
	}}, nil
}

func (TimeWidget) Exportable(w types.Widget, _ json.RawMessage) (*widget.ExportableDecl, error) {
	return excelTitle(w.Title), nil
}

// DeriveAttribute accepts "HH:MM" or "HH:MM:SS" and filters on seconds since midnight.
func (tw TimeWidget) DeriveAttribute(w types.Widget, _ json.RawMessage, value json.RawMessage) (*widget.Derived, error) {
	var v struct {
		Value string `json:"value"`
	}
	if err := decodeValue(tw.Type(), value, &v); err != nil {
		return nil, err
	}

	fv := widget.FilterValue{}
	var export any
	if v.Value != "" {
		parsed, err := parseClock(v.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, tw.Type(), err)
		}
		seconds := int64(parsed.Hour()*3600 + parsed.Minute()*60 + parsed.Second())
		fv.Number = widget.Int64(seconds)
		export = parsed.Format("15:04")
	}
	return &widget.Derived{
		Filters: []widget.FilterValue{fv},
		Export:  excelValue(export),
	}, nil
}

func parseClock(s string) (time.Time, error) {
	if t, err := time.Parse("15:04:05", s); err == nil {
		return t, nil
	}
	return time.Parse("15:04", s)
}
