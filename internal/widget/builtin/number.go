package builtin

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/widget"
)

// NumberWidget records a single number.
type NumberWidget struct{}

func (NumberWidget) Type() string { return "numberWidget" }

func (NumberWidget) Filters(w types.Widget, _ json.RawMessage) ([]widget.FilterDecl, error) {
	return []widget.FilterDecl{{
		FilterType: types.FilterNumber,
		Properties: map[string]any{"type": "number"},
	}}, nil
}

func (NumberWidget) Exportable(w types.Widget, _ json.RawMessage) (*widget.ExportableDecl, error) {
	return excelTitle(w.Title), nil
}

// DeriveAttribute stores the integral part for filtering; the export keeps the exact value.
func (n NumberWidget) DeriveAttribute(w types.Widget, _ json.RawMessage, value json.RawMessage) (*widget.Derived, error) {
	var v struct {
		Value *float64 `json:"value"`
	}
	if err := decodeValue(n.Type(), value, &v); err != nil {
		return nil, err
	}

	fv := widget.FilterValue{}
	var export any
	if v.Value != nil {
		if math.IsNaN(*v.Value) || math.IsInf(*v.Value, 0) {
			return nil, fmt.Errorf("%w: %s: not a finite number", ErrInvalidValue, n.Type())
		}
		fv.Number = widget.Int64(int64(*v.Value))
		export = strconv.FormatFloat(*v.Value, 'f', -1, 64)
	}
	return &widget.Derived{
		Filters: []widget.FilterValue{fv},
		Export:  excelValue(export),
	}, nil
}
