package builtin

import (
	"encoding/json"

	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/widget"
)

// GeoWidget records a set of geographic areas identified by their keys.
type GeoWidget struct{}

func (GeoWidget) Type() string { return "geoWidget" }

func (GeoWidget) Filters(w types.Widget, _ json.RawMessage) ([]widget.FilterDecl, error) {
	return []widget.FilterDecl{{
		FilterType: types.FilterList,
		Properties: map[string]any{"type": "geo"},
	}}, nil
}

func (GeoWidget) Exportable(w types.Widget, _ json.RawMessage) (*widget.ExportableDecl, error) {
	return &widget.ExportableDecl{
		Data: map[string]any{
			"excel": map[string]any{"type": "geo", "title": w.Title},
		},
	}, nil
}

func (g GeoWidget) DeriveAttribute(w types.Widget, _ json.RawMessage, value json.RawMessage) (*widget.Derived, error) {
	var v struct {
		Value []string `json:"value"`
	}
	if err := decodeValue(g.Type(), value, &v); err != nil {
		return nil, err
	}
	areas := nonNil(v.Value)
	return &widget.Derived{
		Filters: []widget.FilterValue{{Values: areas}},
		Export: map[string]any{
			"excel": map[string]any{"type": "geo", "values": areas},
		},
	}, nil
}
