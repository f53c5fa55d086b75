package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/deep/internal/metrics"
	"github.com/hyperengineering/deep/internal/store"
	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/widget"
)

// Declarations computes the filters and exportable a widget declares. Filter
// keys and titles default to the widget's key and title. Widgets of unknown
// types declare nothing.
func (p *Pipeline) Declarations(w types.Widget) (store.WidgetDeclarations, error) {
	d := store.WidgetDeclarations{FrameworkID: w.FrameworkID, WidgetKey: w.Key}

	res, ok := p.registry.Lookup(w.WidgetType)
	if !ok {
		return d, nil
	}
	data := widget.Data(w.Properties)

	if fd := res.FilterDeriver(); fd != nil {
		decls, err := fd.Filters(w, data)
		if err != nil {
			return d, fmt.Errorf("derive filters: %w", err)
		}
		for _, decl := range decls {
			f := types.Filter{
				FrameworkID: w.FrameworkID,
				WidgetKey:   w.Key,
				Key:         decl.Key,
				Title:       decl.Title,
				FilterType:  decl.FilterType,
			}
			if f.Key == "" {
				f.Key = w.Key
			}
			if f.Title == "" {
				f.Title = w.Title
			}
			if decl.Properties != nil {
				props, err := json.Marshal(decl.Properties)
				if err != nil {
					return d, fmt.Errorf("marshal filter properties: %w", err)
				}
				f.Properties = props
			}
			d.Filters = append(d.Filters, f)
		}
	}

	if ed := res.ExportableDeriver(); ed != nil {
		decl, err := ed.Exportable(w, data)
		if err != nil {
			return d, fmt.Errorf("derive exportable: %w", err)
		}
		if decl != nil {
			x := &types.Exportable{FrameworkID: w.FrameworkID, WidgetKey: w.Key, Inline: decl.Inline}
			if decl.Data != nil {
				b, err := json.Marshal(decl.Data)
				if err != nil {
					return d, fmt.Errorf("marshal exportable data: %w", err)
				}
				x.Data = b
			}
			d.Exportable = x
		}
	}
	return d, nil
}

// SyncWidget upserts the filters and exportable a widget declares and removes
// the ones it no longer declares. Running it twice on an unchanged widget
// leaves identical rows.
func (p *Pipeline) SyncWidget(ctx context.Context, w types.Widget) error {
	d, err := p.Declarations(w)
	if err != nil {
		p.metrics.RecordWidgetSync(metrics.StatusError)
		return fmt.Errorf("widget %s: %w", w.Key, err)
	}
	if err := p.store.SyncWidgetDeclarations(ctx, d); err != nil {
		p.metrics.RecordWidgetSync(metrics.StatusError)
		return fmt.Errorf("widget %s: %w", w.Key, err)
	}
	p.metrics.RecordWidgetSync(metrics.StatusSuccess)
	return nil
}

// SyncAllWidgets syncs every widget of frameworkID, or of all frameworks when
// frameworkID is empty. Widgets are independent: a failure is recorded in the
// summary and the batch continues.
func (p *Pipeline) SyncAllWidgets(ctx context.Context, frameworkID string) (types.SyncSummary, error) {
	summary := types.SyncSummary{}

	widgets, err := p.store.ListWidgets(ctx, frameworkID)
	if err != nil {
		return summary, fmt.Errorf("list widgets: %w", err)
	}

	for _, w := range widgets {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := p.SyncWidget(ctx, w); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, err.Error())
			slog.Warn("widget sync failed",
				"component", "pipeline",
				"action", "sync_all_widgets",
				"framework_id", w.FrameworkID,
				"widget_key", w.Key,
				"error", err,
			)
			continue
		}
		summary.Synced++
	}

	slog.Info("widgets synced",
		"component", "pipeline",
		"action", "sync_all_widgets",
		"framework_id", frameworkID,
		"synced", summary.Synced,
		"failed", summary.Failed,
	)
	return summary, nil
}
