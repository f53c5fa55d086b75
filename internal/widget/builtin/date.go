package builtin

import (
	"encoding/json"

	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/widget"
)

// DateWidget records a single calendar date.
type DateWidget struct{}

func (DateWidget) Type() string { return "dateWidget" }

func (DateWidget) Filters(w types.Widget, _ json.RawMessage) ([]widget.FilterDecl, error) {
	return []widget.FilterDecl{{
		FilterType: types.FilterNumber,
		Properties: map[string]any{"type": "date"},
	}}, nil
}

func (DateWidget) Exportable(w types.Widget, _ json.RawMessage) (*widget.ExportableDecl, error) {
	return excelTitle(w.Title), nil
}

func (d DateWidget) DeriveAttribute(w types.Widget, _ json.RawMessage, value json.RawMessage) (*widget.Derived, error) {
	var v struct {
		Value string `json:"value"`
	}
	if err := decodeValue(d.Type(), value, &v); err != nil {
		return nil, err
	}
	date, err := parseDate(d.Type(), v.Value)
	if err != nil {
		return nil, err
	}

	fv := widget.FilterValue{}
	var export any
	if date != nil {
		fv.Number = widget.Int64(epochDays(*date))
		export = date.Format(exportDateLayout)
	}
	return &widget.Derived{
		Filters: []widget.FilterValue{fv},
		Export:  excelValue(export),
	}, nil
}
