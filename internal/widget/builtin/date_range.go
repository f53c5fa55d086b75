package builtin

import (
	"encoding/json"

	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/widget"
)

// DateRangeWidget records an inclusive date interval.
type DateRangeWidget struct{}

func (DateRangeWidget) Type() string { return "dateRangeWidget" }

func (DateRangeWidget) Filters(w types.Widget, _ json.RawMessage) ([]widget.FilterDecl, error) {
	return []widget.FilterDecl{{
		FilterType: types.FilterIntersects,
		Properties: map[string]any{"type": "date"},
	}}, nil
}

func (DateRangeWidget) Exportable(w types.Widget, _ json.RawMessage) (*widget.ExportableDecl, error) {
	return &widget.ExportableDecl{
		Data: map[string]any{
			"excel": map[string]any{
				"type":   "multiple",
				"titles": []string{w.Title + " (From)", w.Title + " (To)"},
			},
		},
	}, nil
}

func (d DateRangeWidget) DeriveAttribute(w types.Widget, _ json.RawMessage, value json.RawMessage) (*widget.Derived, error) {
	var v struct {
		FromValue string `json:"from_value"`
		ToValue   string `json:"to_value"`
	}
	if err := decodeValue(d.Type(), value, &v); err != nil {
		return nil, err
	}
	from, err := parseDate(d.Type(), v.FromValue)
	if err != nil {
		return nil, err
	}
	to, err := parseDate(d.Type(), v.ToValue)
	if err != nil {
		return nil, err
	}

	fv := widget.FilterValue{}
	exported := []any{nil, nil}
	if from != nil {
		fv.FromNumber = widget.Int64(epochDays(*from))
		exported[0] = from.Format(exportDateLayout)
	}
	if to != nil {
		fv.ToNumber = widget.Int64(epochDays(*to))
		exported[1] = to.Format(exportDateLayout)
	}

	return &widget.Derived{
		Filters: []widget.FilterValue{fv},
		Export: map[string]any{
			"excel": map[string]any{"values": exported},
		},
	}, nil
}
