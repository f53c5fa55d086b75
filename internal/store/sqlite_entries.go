package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperengineering/deep/internal/types"
)

// CreateLead inserts a lead with pending extraction status.
func (s *SQLiteStore) CreateLead(ctx context.Context, l *types.Lead) error {
	if l.ID == "" {
		l.ID = newID()
	}
	ts := now()
	l.CreatedAt, l.UpdatedAt = ts, ts
	if l.SourceType == "" {
		l.SourceType = types.LeadSourceText
	}
	l.ExtractionStatus = types.JobPending

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (id, project_id, title, source_type, url, body, text, extraction_status, extraction_error, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?, ?, ?)
	`, l.ID, l.ProjectID, l.Title, string(l.SourceType), l.URL, l.Body, l.Text, string(l.ExtractionStatus),
		l.CreatedBy, formatTime(ts), formatTime(ts))
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// GetLead retrieves a lead by ID.
func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*types.Lead, error) {
	var l types.Lead
	var sourceType, status, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, title, source_type, url, body, text, extraction_status, extraction_error, created_by, created_at, updated_at
		FROM leads WHERE id = ?
	`, id).Scan(&l.ID, &l.ProjectID, &l.Title, &sourceType, &l.URL, &l.Body, &l.Text, &status, &l.ExtractionError,
		&l.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan lead: %w", err)
	}
	l.SourceType = types.LeadSourceType(sourceType)
	l.ExtractionStatus = types.JobStatus(status)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}

// SetLeadText stores the extracted plain text of a lead.
func (s *SQLiteStore) SetLeadText(ctx context.Context, id, text string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE leads SET text = ?, updated_at = ? WHERE id = ?`,
		text, formatTime(now()), id)
	if err != nil {
		return fmt.Errorf("update lead text: %w", err)
	}
	return requireAffected(res)
}

// SetLeadExtractionStatus records the outcome of the extraction job.
func (s *SQLiteStore) SetLeadExtractionStatus(ctx context.Context, id string, status types.JobStatus, errorCode string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE leads SET extraction_status = ?, extraction_error = ?, updated_at = ? WHERE id = ?
	`, string(status), errorCode, formatTime(now()), id)
	if err != nil {
		return fmt.Errorf("update extraction status: %w", err)
	}
	return requireAffected(res)
}

// CreateEntry inserts an entry.
func (s *SQLiteStore) CreateEntry(ctx context.Context, e *types.Entry) error {
	if e.ID == "" {
		e.ID = newID()
	}
	ts := now()
	e.CreatedAt, e.UpdatedAt = ts, ts
	if e.EntryType == "" {
		e.EntryType = types.EntryExcerpt
	}
	if e.Order == 0 {
		e.Order = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, lead_id, project_id, analysis_framework_id, entry_type, excerpt, image,
			information_date, entry_order, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.LeadID, e.ProjectID, e.FrameworkID, string(e.EntryType), e.Excerpt, e.Image,
		nullString(e.InformationDate), e.Order, e.CreatedBy, formatTime(ts), formatTime(ts))
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

// GetEntry retrieves an entry by ID.
func (s *SQLiteStore) GetEntry(ctx context.Context, id string) (*types.Entry, error) {
	var e types.Entry
	var entryType, createdAt, updatedAt string
	var infoDate sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, lead_id, project_id, analysis_framework_id, entry_type, excerpt, image,
			information_date, entry_order, created_by, created_at, updated_at
		FROM entries WHERE id = ?
	`, id).Scan(&e.ID, &e.LeadID, &e.ProjectID, &e.FrameworkID, &entryType, &e.Excerpt, &e.Image,
		&infoDate, &e.Order, &e.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	e.EntryType = types.EntryType(entryType)
	e.InformationDate = stringPtr(infoDate)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return &e, nil
}

// SaveAttribute upserts an attribute and its derived FilterData and ExportData
// in one transaction. The entry and widget must share a framework; the check is
// repeated inside the transaction so a concurrent framework change cannot slip
// through. FilterData of the widget's filters that were not derived is deleted,
// and derived values for undeclared filters are ignored.
func (s *SQLiteStore) SaveAttribute(ctx context.Context, w AttributeWrite) (*types.Attribute, error) {
	attr := &types.Attribute{EntryID: w.EntryID, WidgetID: w.WidgetID, Data: w.Data}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var entryFramework, widgetFramework, widgetKey string
		err := tx.QueryRowContext(ctx, `SELECT analysis_framework_id FROM entries WHERE id = ?`, w.EntryID).Scan(&entryFramework)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("entry %s: %w", w.EntryID, ErrNotFound)
			}
			return fmt.Errorf("load entry: %w", err)
		}
		err = tx.QueryRowContext(ctx, `SELECT analysis_framework_id, key FROM widgets WHERE id = ?`, w.WidgetID).Scan(&widgetFramework, &widgetKey)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("widget %s: %w", w.WidgetID, ErrNotFound)
			}
			return fmt.Errorf("load widget: %w", err)
		}
		if entryFramework != widgetFramework {
			return &ConsistencyError{
				EntryID:           w.EntryID,
				WidgetID:          w.WidgetID,
				EntryFrameworkID:  entryFramework,
				WidgetFrameworkID: widgetFramework,
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO attributes (id, entry_id, widget_id, data) VALUES (?, ?, ?, ?)
			ON CONFLICT (entry_id, widget_id) DO UPDATE SET data = excluded.data
		`, newID(), w.EntryID, w.WidgetID, nullJSON(w.Data))
		if err != nil {
			return fmt.Errorf("upsert attribute: %w", err)
		}
		if err := tx.QueryRowContext(ctx, `
			SELECT id FROM attributes WHERE entry_id = ? AND widget_id = ?
		`, w.EntryID, w.WidgetID).Scan(&attr.ID); err != nil {
			return fmt.Errorf("load attribute id: %w", err)
		}

		if err := writeFilterData(ctx, tx, w, widgetFramework, widgetKey); err != nil {
			return err
		}
		return writeExportData(ctx, tx, w, widgetFramework, widgetKey)
	})
	if err != nil {
		return nil, err
	}
	return attr, nil
}

func writeFilterData(ctx context.Context, tx *sql.Tx, w AttributeWrite, frameworkID, widgetKey string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, key FROM filters WHERE analysis_framework_id = ? AND widget_key = ?
	`, frameworkID, widgetKey)
	if err != nil {
		return fmt.Errorf("query filters: %w", err)
	}
	declared := map[string]string{}
	for rows.Next() {
		var id, key string
		if err := rows.Scan(&id, &key); err != nil {
			rows.Close()
			return fmt.Errorf("scan filter: %w", err)
		}
		declared[key] = id
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate filters: %w", err)
	}
	if len(declared) == 0 {
		return nil
	}

	upsert, err := tx.PrepareContext(ctx, `
		INSERT INTO filter_data (id, entry_id, filter_id, value_list, number, from_number, to_number)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entry_id, filter_id) DO UPDATE SET
			value_list = excluded.value_list,
			number = excluded.number,
			from_number = excluded.from_number,
			to_number = excluded.to_number
	`)
	if err != nil {
		return fmt.Errorf("prepare filter data upsert: %w", err)
	}
	defer upsert.Close()

	written := map[string]bool{}
	for _, fd := range w.Filters {
		filterID, ok := declared[fd.FilterKey]
		if !ok {
			continue
		}
		var values sql.NullString
		if fd.Values != nil {
			b, err := json.Marshal(fd.Values)
			if err != nil {
				return fmt.Errorf("marshal filter values: %w", err)
			}
			values = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := upsert.ExecContext(ctx, newID(), w.EntryID, filterID, values,
			nullInt(fd.Number), nullInt(fd.FromNumber), nullInt(fd.ToNumber)); err != nil {
			return fmt.Errorf("upsert filter data %s: %w", fd.FilterKey, err)
		}
		written[filterID] = true
	}

	del, err := tx.PrepareContext(ctx, `DELETE FROM filter_data WHERE entry_id = ? AND filter_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare filter data delete: %w", err)
	}
	defer del.Close()

	for _, filterID := range declared {
		if written[filterID] {
			continue
		}
		if _, err := del.ExecContext(ctx, w.EntryID, filterID); err != nil {
			return fmt.Errorf("delete stale filter data: %w", err)
		}
	}
	return nil
}

func writeExportData(ctx context.Context, tx *sql.Tx, w AttributeWrite, frameworkID, widgetKey string) error {
	var exportableID string
	err := tx.QueryRowContext(ctx, `
		SELECT id FROM exportables WHERE analysis_framework_id = ? AND widget_key = ?
	`, frameworkID, widgetKey).Scan(&exportableID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load exportable: %w", err)
	}

	if len(w.Export) == 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM export_data WHERE entry_id = ? AND exportable_id = ?
		`, w.EntryID, exportableID); err != nil {
			return fmt.Errorf("delete stale export data: %w", err)
		}
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO export_data (id, entry_id, exportable_id, data) VALUES (?, ?, ?, ?)
		ON CONFLICT (entry_id, exportable_id) DO UPDATE SET data = excluded.data
	`, newID(), w.EntryID, exportableID, string(w.Export))
	if err != nil {
		return fmt.Errorf("upsert export data: %w", err)
	}
	return nil
}

// ListAttributes returns every attribute recorded on entries of a framework.
// An empty frameworkID lists the attributes of all frameworks.
func (s *SQLiteStore) ListAttributes(ctx context.Context, frameworkID string) ([]types.Attribute, error) {
	query := `
		SELECT a.id, a.entry_id, a.widget_id, a.data
		FROM attributes a
		JOIN entries e ON e.id = a.entry_id`
	var args []any
	if frameworkID != "" {
		query += ` WHERE e.analysis_framework_id = ?`
		args = append(args, frameworkID)
	}
	query += ` ORDER BY a.entry_id, a.widget_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attributes: %w", err)
	}
	defer rows.Close()

	var out []types.Attribute
	for rows.Next() {
		var a types.Attribute
		var data sql.NullString
		if err := rows.Scan(&a.ID, &a.EntryID, &a.WidgetID, &data); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		a.Data = rawJSON(data)
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListFilterData returns the FilterData of an entry with their filter keys.
func (s *SQLiteStore) ListFilterData(ctx context.Context, entryID string) ([]types.FilterData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fd.id, fd.entry_id, fd.filter_id, f.key, fd.value_list, fd.number, fd.from_number, fd.to_number
		FROM filter_data fd
		JOIN filters f ON f.id = fd.filter_id
		WHERE fd.entry_id = ?
		ORDER BY f.widget_key, f.key
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("query filter data: %w", err)
	}
	defer rows.Close()

	var out []types.FilterData
	for rows.Next() {
		var fd types.FilterData
		var values sql.NullString
		var number, from, to sql.NullInt64
		if err := rows.Scan(&fd.ID, &fd.EntryID, &fd.FilterID, &fd.FilterKey, &values, &number, &from, &to); err != nil {
			return nil, fmt.Errorf("scan filter data: %w", err)
		}
		if values.Valid {
			if err := json.Unmarshal([]byte(values.String), &fd.Values); err != nil {
				return nil, fmt.Errorf("parse filter values: %w", err)
			}
		}
		fd.Number = intPtr(number)
		fd.FromNumber = intPtr(from)
		fd.ToNumber = intPtr(to)
		out = append(out, fd)
	}
	return out, rows.Err()
}

// ListExportData returns the ExportData of an entry with their widget keys.
func (s *SQLiteStore) ListExportData(ctx context.Context, entryID string) ([]types.ExportData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ed.id, ed.entry_id, ed.exportable_id, x.widget_key, ed.data
		FROM export_data ed
		JOIN exportables x ON x.id = ed.exportable_id
		WHERE ed.entry_id = ?
		ORDER BY x.widget_key
	`, entryID)
	if err != nil {
		return nil, fmt.Errorf("query export data: %w", err)
	}
	defer rows.Close()

	var out []types.ExportData
	for rows.Next() {
		var ed types.ExportData
		var data sql.NullString
		if err := rows.Scan(&ed.ID, &ed.EntryID, &ed.ExportableID, &ed.WidgetKey, &data); err != nil {
			return nil, fmt.Errorf("scan export data: %w", err)
		}
		ed.Data = rawJSON(data)
		out = append(out, ed)
	}
	return out, rows.Err()
}
