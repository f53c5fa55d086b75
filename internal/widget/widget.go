// Package widget defines the widget handler capabilities and the registry that
// maps widget type tags onto handlers.
package widget

import (
	"encoding/json"

	"github.com/hyperengineering/deep/internal/types"
	"github.com/tidwall/gjson"
)

// Handler is implemented by every widget type. Capabilities are expressed by
// additionally implementing FilterDeriver, ExportableDeriver or AttributeDeriver.
type Handler interface {
	// Type returns the widget type tag this handler serves (e.g. "dateWidget").
	Type() string
}

// FilterDeriver declares the filters a widget contributes to its framework.
type FilterDeriver interface {
	Filters(w types.Widget, data json.RawMessage) ([]FilterDecl, error)
}

// ExportableDeriver declares the export shape of a widget.
// A nil declaration means the widget is not exported.
type ExportableDeriver interface {
	Exportable(w types.Widget, data json.RawMessage) (*ExportableDecl, error)
}

// AttributeDeriver derives filter and export projections from an attribute value.
type AttributeDeriver interface {
	DeriveAttribute(w types.Widget, data json.RawMessage, value json.RawMessage) (*Derived, error)
}

// FilterDecl is a filter declaration produced by a handler.
// Empty Key and Title default to the widget's key and title.
type FilterDecl struct {
	Key        string
	Title      string
	FilterType types.FilterType
	Properties map[string]any
}

// ExportableDecl is an exportable declaration produced by a handler.
type ExportableDecl struct {
	Inline bool
	Data   map[string]any
}

// FilterValue is the derived filter data for one filter of the widget.
// Empty Key refers to the filter keyed by the widget key.
type FilterValue struct {
	Key        string
	Values     []string
	Number     *int64
	FromNumber *int64
	ToNumber   *int64
}

// Derived holds everything a handler derives from one attribute value.
type Derived struct {
	Filters []FilterValue
	Export  map[string]any
}

// Data extracts the handler configuration ("properties.data") from widget properties.
// Missing or null data yields an empty object.
func Data(properties json.RawMessage) json.RawMessage {
	if len(properties) == 0 {
		return json.RawMessage("{}")
	}
	res := gjson.GetBytes(properties, "data")
	if !res.Exists() || res.Type == gjson.Null {
		return json.RawMessage("{}")
	}
	return json.RawMessage(res.Raw)
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 {
	return &v
}
