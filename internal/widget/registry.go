package widget

import (
	"sort"
)

// Capabilities records which optional interfaces a handler implements.
type Capabilities struct {
	Filters    bool `json:"filters"`
	Exportable bool `json:"exportable"`
	Attribute  bool `json:"attribute"`
}

// Resolved is a registered handler with its capabilities checked once at registration.
type Resolved struct {
	handler    Handler
	caps       Capabilities
	filters    FilterDeriver
	exportable ExportableDeriver
	attribute  AttributeDeriver
}

// Type returns the widget type tag.
func (r *Resolved) Type() string { return r.handler.Type() }

// Capabilities returns the capability set of the handler.
func (r *Resolved) Capabilities() Capabilities { return r.caps }

// FilterDeriver returns the filter capability or nil.
func (r *Resolved) FilterDeriver() FilterDeriver { return r.filters }

// ExportableDeriver returns the exportable capability or nil.
func (r *Resolved) ExportableDeriver() ExportableDeriver { return r.exportable }

// AttributeDeriver returns the attribute capability or nil.
func (r *Resolved) AttributeDeriver() AttributeDeriver { return r.attribute }

// Registry maps widget type tags to handlers. It is immutable after NewRegistry
// returns and safe for concurrent use.
type Registry struct {
	handlers map[string]*Resolved
}

// NewRegistry builds a registry from the given handlers.
// Panics if two handlers declare the same type.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]*Resolved, len(handlers))}
	for _, h := range handlers {
		t := h.Type()
		if _, exists := r.handlers[t]; exists {
			panic("widget handler already registered: " + t)
		}
		res := &Resolved{handler: h}
		if fd, ok := h.(FilterDeriver); ok {
			res.filters = fd
			res.caps.Filters = true
		}
		if ed, ok := h.(ExportableDeriver); ok {
			res.exportable = ed
			res.caps.Exportable = true
		}
		if ad, ok := h.(AttributeDeriver); ok {
			res.attribute = ad
			res.caps.Attribute = true
		}
		r.handlers[t] = res
	}
	return r
}

// Lookup returns the handler for a widget type.
// Unknown types are not an error: the boolean is false and callers skip derivation.
func (r *Registry) Lookup(widgetType string) (*Resolved, bool) {
	if r == nil {
		return nil, false
	}
	res, ok := r.handlers[widgetType]
	return res, ok
}

// Types returns all registered widget types, sorted.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
