package builtin

import (
	"encoding/json"

	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/widget"
)

type optionsData struct {
	Options []option `json:"options"`
}

type scaleData struct {
	ScaleUnits []option `json:"scale_units"`
}

// ScaleWidget records one unit of an ordered scale.
type ScaleWidget struct{}

func (ScaleWidget) Type() string { return "scaleWidget" }

func (s ScaleWidget) Filters(w types.Widget, data json.RawMessage) ([]widget.FilterDecl, error) {
	var d scaleData
	if err := decode(data, &d); err != nil {
		return nil, err
	}
	return []widget.FilterDecl{{
		FilterType: types.FilterList,
		Properties: map[string]any{
			"type":    "multiselect-range",
			"options": optionList(d.ScaleUnits),
		},
	}}, nil
}

func (ScaleWidget) Exportable(w types.Widget, _ json.RawMessage) (*widget.ExportableDecl, error) {
	return excelTitle(w.Title), nil
}

func (s ScaleWidget) DeriveAttribute(w types.Widget, data json.RawMessage, value json.RawMessage) (*widget.Derived, error) {
	var d scaleData
	if err := decode(data, &d); err != nil {
		return nil, err
	}
	return deriveSingleChoice(s.Type(), d.ScaleUnits, value)
}

// SelectWidget records one option out of a list.
type SelectWidget struct{}

func (SelectWidget) Type() string { return "selectWidget" }

func (SelectWidget) Filters(w types.Widget, data json.RawMessage) ([]widget.FilterDecl, error) {
	var d optionsData
	if err := decode(data, &d); err != nil {
		return nil, err
	}
	return []widget.FilterDecl{{
		FilterType: types.FilterList,
		Properties: map[string]any{
			"type":    "multiselect",
			"options": optionList(d.Options),
		},
	}}, nil
}

func (SelectWidget) Exportable(w types.Widget, _ json.RawMessage) (*widget.ExportableDecl, error) {
	return excelTitle(w.Title), nil
}

func (s SelectWidget) DeriveAttribute(w types.Widget, data json.RawMessage, value json.RawMessage) (*widget.Derived, error) {
	var d optionsData
	if err := decode(data, &d); err != nil {
		return nil, err
	}
	return deriveSingleChoice(s.Type(), d.Options, value)
}

// MultiselectWidget records any number of options out of a list.
type MultiselectWidget struct{}

func (MultiselectWidget) Type() string { return "multiselectWidget" }

func (MultiselectWidget) Filters(w types.Widget, data json.RawMessage) ([]widget.FilterDecl, error) {
	return SelectWidget{}.Filters(w, data)
}

func (MultiselectWidget) Exportable(w types.Widget, _ json.RawMessage) (*widget.ExportableDecl, error) {
	return excelTitle(w.Title), nil
}

func (m MultiselectWidget) DeriveAttribute(w types.Widget, data json.RawMessage, value json.RawMessage) (*widget.Derived, error) {
	var d optionsData
	if err := decode(data, &d); err != nil {
		return nil, err
	}
	var v struct {
		Value []string `json:"value"`
	}
	if err := decodeValue(m.Type(), value, &v); err != nil {
		return nil, err
	}

	labels := optionLabels(d.Options)
	exported := make([]string, 0, len(v.Value))
	for _, key := range v.Value {
		exported = append(exported, labelOr(labels, key))
	}
	return &widget.Derived{
		Filters: []widget.FilterValue{{Values: nonNil(v.Value)}},
		Export: map[string]any{
			"excel": map[string]any{"type": "list", "value": exported},
		},
	}, nil
}

// deriveSingleChoice handles widgets whose value is a single option key.
func deriveSingleChoice(widgetType string, opts []option, value json.RawMessage) (*widget.Derived, error) {
	var v struct {
		Value string `json:"value"`
	}
	if err := decodeValue(widgetType, value, &v); err != nil {
		return nil, err
	}

	fv := widget.FilterValue{Values: []string{}}
	var export any
	if v.Value != "" {
		fv.Values = []string{v.Value}
		export = labelOr(optionLabels(opts), v.Value)
	}
	return &widget.Derived{
		Filters: []widget.FilterValue{fv},
		Export:  excelValue(export),
	}, nil
}

func labelOr(labels map[string]string, key string) string {
	if l, ok := labels[key]; ok && l != "" {
		return l
	}
	return key
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
