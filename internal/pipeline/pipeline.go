// Package pipeline derives FilterData and ExportData from attribute writes and
// keeps the filter and exportable declarations of widgets in sync with their
// handlers.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/deep/internal/metrics"
	"github.com/hyperengineering/deep/internal/store"
	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/widget"
)

// ErrInvalidAttribute is returned when a handler cannot derive projections
// from an attribute value. Nothing is written in that case.
var ErrInvalidAttribute = errors.New("invalid attribute value")

// Store is the persistence the pipeline depends on.
type Store interface {
	GetEntry(ctx context.Context, id string) (*types.Entry, error)
	GetWidget(ctx context.Context, id string) (*types.Widget, error)
	ListWidgets(ctx context.Context, frameworkID string) ([]types.Widget, error)
	ListAttributes(ctx context.Context, frameworkID string) ([]types.Attribute, error)
	SaveAttribute(ctx context.Context, w store.AttributeWrite) (*types.Attribute, error)
	SyncWidgetDeclarations(ctx context.Context, d store.WidgetDeclarations) error
}

// Pipeline writes attributes and widget declarations through the widget registry.
type Pipeline struct {
	store    Store
	registry *widget.Registry
	metrics  *metrics.Metrics
}

// New creates a Pipeline. m may be nil.
func New(s Store, registry *widget.Registry, m *metrics.Metrics) *Pipeline {
	return &Pipeline{store: s, registry: registry, metrics: m}
}

// SetAttribute records value for the (entry, widget) pair and replaces the
// derived FilterData and ExportData in the same transaction. Widgets of an
// unknown type keep the attribute without derived rows.
func (p *Pipeline) SetAttribute(ctx context.Context, entryID, widgetID string, value json.RawMessage) (*types.Attribute, error) {
	if !json.Valid(value) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidAttribute)
	}

	entry, err := p.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("get entry: %w", err)
	}
	w, err := p.store.GetWidget(ctx, widgetID)
	if err != nil {
		return nil, fmt.Errorf("get widget: %w", err)
	}
	if entry.FrameworkID != w.FrameworkID {
		p.metrics.RecordAttributeWrite(w.WidgetType, metrics.StatusError)
		return nil, &store.ConsistencyError{
			EntryID:           entry.ID,
			WidgetID:          w.ID,
			EntryFrameworkID:  entry.FrameworkID,
			WidgetFrameworkID: w.FrameworkID,
		}
	}

	write, err := p.derive(*w, value)
	if err != nil {
		p.metrics.RecordAttributeWrite(w.WidgetType, metrics.StatusError)
		return nil, err
	}
	write.EntryID = entryID

	attr, err := p.store.SaveAttribute(ctx, write)
	if err != nil {
		p.metrics.RecordAttributeWrite(w.WidgetType, metrics.StatusError)
		return nil, fmt.Errorf("save attribute: %w", err)
	}

	p.metrics.RecordAttributeWrite(w.WidgetType, metrics.StatusSuccess)
	slog.Debug("attribute saved",
		"component", "pipeline",
		"action", "set_attribute",
		"entry_id", entryID,
		"widget_key", w.Key,
		"filters", len(write.Filters),
	)
	return attr, nil
}

// derive runs the widget handler over value. It is pure: nothing is read or written.
func (p *Pipeline) derive(w types.Widget, value json.RawMessage) (store.AttributeWrite, error) {
	write := store.AttributeWrite{WidgetID: w.ID, Data: value}

	res, ok := p.registry.Lookup(w.WidgetType)
	if !ok {
		slog.Debug("unknown widget type, storing attribute only",
			"component", "pipeline",
			"widget_type", w.WidgetType,
			"widget_key", w.Key,
		)
		return write, nil
	}
	deriver := res.AttributeDeriver()
	if deriver == nil {
		return write, nil
	}

	derived, err := deriver.DeriveAttribute(w, widget.Data(w.Properties), value)
	if err != nil {
		return write, fmt.Errorf("%w: widget %s: %v", ErrInvalidAttribute, w.Key, err)
	}
	if derived == nil {
		return write, nil
	}

	for _, fv := range derived.Filters {
		key := fv.Key
		if key == "" {
			key = w.Key
		}
		write.Filters = append(write.Filters, types.FilterData{
			FilterKey:  key,
			Values:     fv.Values,
			Number:     fv.Number,
			FromNumber: fv.FromNumber,
			ToNumber:   fv.ToNumber,
		})
	}

	if len(derived.Export) > 0 {
		data, err := json.Marshal(derived.Export)
		if err != nil {
			return write, fmt.Errorf("marshal export data: %w", err)
		}
		write.Export = data
	}
	return write, nil
}

// ReapplyAttributes re-derives every stored attribute of a framework, so
// FilterData and ExportData follow handler or declaration changes.
func (p *Pipeline) ReapplyAttributes(ctx context.Context, frameworkID string) (types.SyncSummary, error) {
	summary := types.SyncSummary{}

	attrs, err := p.store.ListAttributes(ctx, frameworkID)
	if err != nil {
		return summary, fmt.Errorf("list attributes: %w", err)
	}

	for _, a := range attrs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if _, err := p.SetAttribute(ctx, a.EntryID, a.WidgetID, a.Data); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("attribute %s: %v", a.ID, err))
			slog.Warn("attribute reapply failed",
				"component", "pipeline",
				"action", "reapply_attributes",
				"attribute_id", a.ID,
				"error", err,
			)
			continue
		}
		summary.Synced++
	}
	return summary, nil
}
