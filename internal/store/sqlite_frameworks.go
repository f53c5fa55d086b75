package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hyperengineering/deep/internal/types"
)

const ownerFrameworkRoleID = "af-owner"

// CreateFramework inserts a framework and makes its creator an owner member.
func (s *SQLiteStore) CreateFramework(ctx context.Context, f *types.AnalysisFramework) error {
	if f.ID == "" {
		f.ID = newID()
	}
	ts := now()
	f.CreatedAt, f.UpdatedAt = ts, ts
	if f.SyncStatus == "" {
		f.SyncStatus = types.JobSuccess
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO analysis_frameworks (id, title, description, project_id, is_private, sync_status, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, f.ID, f.Title, f.Description, nullString(f.ProjectID), boolInt(f.IsPrivate), string(f.SyncStatus),
			f.CreatedBy, formatTime(ts), formatTime(ts))
		if err != nil {
			return fmt.Errorf("insert framework: %w", mapConstraint(err))
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO framework_memberships (id, framework_id, user_id, role_id, added_by, joined_at)
			VALUES (?, ?, ?, ?, NULL, ?)
		`, newID(), f.ID, f.CreatedBy, ownerFrameworkRoleID, formatTime(ts))
		if err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		return nil
	})
}

// GetFramework retrieves a framework by ID.
func (s *SQLiteStore) GetFramework(ctx context.Context, id string) (*types.AnalysisFramework, error) {
	var f types.AnalysisFramework
	var projectID sql.NullString
	var isPrivate int
	var syncStatus, createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, project_id, is_private, sync_status, created_by, created_at, updated_at
		FROM analysis_frameworks WHERE id = ?
	`, id).Scan(&f.ID, &f.Title, &f.Description, &projectID, &isPrivate, &syncStatus, &f.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan framework: %w", err)
	}

	f.ProjectID = stringPtr(projectID)
	f.IsPrivate = isPrivate == 1
	f.SyncStatus = types.JobStatus(syncStatus)
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	return &f, nil
}

// SetFrameworkSyncStatus records the state of the framework's widget sync job.
func (s *SQLiteStore) SetFrameworkSyncStatus(ctx context.Context, id string, status types.JobStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analysis_frameworks SET sync_status = ?, updated_at = ? WHERE id = ?
	`, string(status), formatTime(now()), id)
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}
	return requireAffected(res)
}

func scanFrameworkRole(row interface{ Scan(...any) error }) (*types.FrameworkRole, error) {
	var r types.FrameworkRole
	var addUser, clone, edit, use, isDefault int
	if err := row.Scan(&r.ID, &r.Title, &addUser, &clone, &edit, &use, &isDefault); err != nil {
		return nil, err
	}
	r.CanAddUser = addUser == 1
	r.CanCloneFramework = clone == 1
	r.CanEditFramework = edit == 1
	r.CanUseInOtherProjects = use == 1
	r.IsDefaultRole = isDefault == 1
	return &r, nil
}

const frameworkRoleColumns = `fr.id, fr.title, fr.can_add_user, fr.can_clone_framework, fr.can_edit_framework,
	fr.can_use_in_other_projects, fr.is_default_role`

// GetFrameworkRole retrieves a framework role by ID.
func (s *SQLiteStore) GetFrameworkRole(ctx context.Context, id string) (*types.FrameworkRole, error) {
	r, err := scanFrameworkRole(s.db.QueryRowContext(ctx,
		`SELECT `+frameworkRoleColumns+` FROM framework_roles fr WHERE fr.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan framework role: %w", err)
	}
	return r, nil
}

// FrameworkRole returns the role userID holds on frameworkID, or ErrNotFound
// when the user is not a framework member.
func (s *SQLiteStore) FrameworkRole(ctx context.Context, frameworkID, userID string) (*types.FrameworkRole, error) {
	r, err := scanFrameworkRole(s.db.QueryRowContext(ctx, `
		SELECT `+frameworkRoleColumns+`
		FROM framework_memberships fm
		JOIN framework_roles fr ON fr.id = fm.role_id
		WHERE fm.framework_id = ? AND fm.user_id = ?
	`, frameworkID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan framework membership: %w", err)
	}
	return r, nil
}

// AddFrameworkMember creates or updates a framework membership.
func (s *SQLiteStore) AddFrameworkMember(ctx context.Context, m *types.FrameworkMembership) error {
	if m.ID == "" {
		m.ID = newID()
	}
	m.JoinedAt = now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO framework_memberships (id, framework_id, user_id, role_id, added_by, joined_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (framework_id, user_id) DO UPDATE SET role_id = excluded.role_id
	`, m.ID, m.FrameworkID, m.UserID, m.RoleID, nullString(m.AddedBy), formatTime(m.JoinedAt))
	if err != nil {
		return fmt.Errorf("upsert framework membership: %w", err)
	}
	return nil
}

const widgetColumns = `id, analysis_framework_id, widget_type, key, title, properties`

func scanWidget(row interface{ Scan(...any) error }) (*types.Widget, error) {
	var w types.Widget
	var props sql.NullString
	if err := row.Scan(&w.ID, &w.FrameworkID, &w.WidgetType, &w.Key, &w.Title, &props); err != nil {
		return nil, err
	}
	w.Properties = rawJSON(props)
	return &w, nil
}

// SaveWidget inserts a widget when its ID is empty and updates it otherwise.
// Renaming a widget key drops the filters and exportable declared under the old key.
func (s *SQLiteStore) SaveWidget(ctx context.Context, w *types.Widget) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if w.ID == "" {
			w.ID = newID()
			_, err := tx.ExecContext(ctx, `
				INSERT INTO widgets (`+widgetColumns+`) VALUES (?, ?, ?, ?, ?, ?)
			`, w.ID, w.FrameworkID, w.WidgetType, w.Key, w.Title, nullJSON(w.Properties))
			if err != nil {
				return fmt.Errorf("insert widget: %w", mapConstraint(err))
			}
			return nil
		}

		old, err := scanWidget(tx.QueryRowContext(ctx, `SELECT `+widgetColumns+` FROM widgets WHERE id = ?`, w.ID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("scan widget: %w", err)
		}
		w.FrameworkID = old.FrameworkID

		_, err = tx.ExecContext(ctx, `
			UPDATE widgets SET widget_type = ?, key = ?, title = ?, properties = ? WHERE id = ?
		`, w.WidgetType, w.Key, w.Title, nullJSON(w.Properties), w.ID)
		if err != nil {
			return fmt.Errorf("update widget: %w", mapConstraint(err))
		}

		if old.Key != w.Key {
			return deleteDeclarations(ctx, tx, old.FrameworkID, old.Key)
		}
		return nil
	})
}

// GetWidget retrieves a widget by ID.
func (s *SQLiteStore) GetWidget(ctx context.Context, id string) (*types.Widget, error) {
	w, err := scanWidget(s.db.QueryRowContext(ctx, `SELECT `+widgetColumns+` FROM widgets WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan widget: %w", err)
	}
	return w, nil
}

// ListWidgets returns the widgets of frameworkID, or of every framework when
// frameworkID is empty.
func (s *SQLiteStore) ListWidgets(ctx context.Context, frameworkID string) ([]types.Widget, error) {
	query := `SELECT ` + widgetColumns + ` FROM widgets`
	var args []any
	if frameworkID != "" {
		query += ` WHERE analysis_framework_id = ?`
		args = append(args, frameworkID)
	}
	query += ` ORDER BY analysis_framework_id, key`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query widgets: %w", err)
	}
	defer rows.Close()

	var out []types.Widget
	for rows.Next() {
		w, err := scanWidget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan widget: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// DeleteWidget removes a widget together with its filters and exportable.
// Attributes, FilterData and ExportData go with them through cascading keys.
func (s *SQLiteStore) DeleteWidget(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		w, err := scanWidget(tx.QueryRowContext(ctx, `SELECT `+widgetColumns+` FROM widgets WHERE id = ?`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("scan widget: %w", err)
		}

		if err := deleteDeclarations(ctx, tx, w.FrameworkID, w.Key); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM widgets WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete widget: %w", err)
		}
		return nil
	})
}

func deleteDeclarations(ctx context.Context, q queryer, frameworkID, widgetKey string) error {
	if _, err := q.ExecContext(ctx, `
		DELETE FROM filters WHERE analysis_framework_id = ? AND widget_key = ?
	`, frameworkID, widgetKey); err != nil {
		return fmt.Errorf("delete filters: %w", err)
	}
	if _, err := q.ExecContext(ctx, `
		DELETE FROM exportables WHERE analysis_framework_id = ? AND widget_key = ?
	`, frameworkID, widgetKey); err != nil {
		return fmt.Errorf("delete exportable: %w", err)
	}
	return nil
}

// SyncWidgetDeclarations replaces the filters and exportable of one widget in a
// single transaction. Filters are upserted in place by (framework, widget_key,
// key) so their IDs and FilterData survive; undeclared filters are deleted.
func (s *SQLiteStore) SyncWidgetDeclarations(ctx context.Context, d WidgetDeclarations) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO filters (id, analysis_framework_id, widget_key, key, title, filter_type, properties)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (analysis_framework_id, widget_key, key) DO UPDATE SET
				title = excluded.title,
				filter_type = excluded.filter_type,
				properties = excluded.properties
		`)
		if err != nil {
			return fmt.Errorf("prepare filter upsert: %w", err)
		}
		defer stmt.Close()

		keys := make([]any, 0, len(d.Filters))
		for _, f := range d.Filters {
			if _, err := stmt.ExecContext(ctx, newID(), d.FrameworkID, d.WidgetKey, f.Key, f.Title,
				string(f.FilterType), nullJSON(f.Properties)); err != nil {
				return fmt.Errorf("upsert filter %s: %w", f.Key, err)
			}
			keys = append(keys, f.Key)
		}

		query := `DELETE FROM filters WHERE analysis_framework_id = ? AND widget_key = ?`
		args := []any{d.FrameworkID, d.WidgetKey}
		if len(keys) > 0 {
			query += ` AND key NOT IN (` + placeholders(len(keys)) + `)`
			args = append(args, keys...)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete stale filters: %w", err)
		}

		if d.Exportable == nil {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM exportables WHERE analysis_framework_id = ? AND widget_key = ?
			`, d.FrameworkID, d.WidgetKey); err != nil {
				return fmt.Errorf("delete exportable: %w", err)
			}
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO exportables (id, analysis_framework_id, widget_key, inline, data)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (analysis_framework_id, widget_key) DO UPDATE SET
				inline = excluded.inline,
				data = excluded.data
		`, newID(), d.FrameworkID, d.WidgetKey, boolInt(d.Exportable.Inline), nullJSON(d.Exportable.Data))
		if err != nil {
			return fmt.Errorf("upsert exportable: %w", err)
		}
		return nil
	})
}

// ListFilters returns the filters declared in a framework.
func (s *SQLiteStore) ListFilters(ctx context.Context, frameworkID string) ([]types.Filter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, analysis_framework_id, widget_key, key, title, filter_type, properties
		FROM filters WHERE analysis_framework_id = ?
		ORDER BY widget_key, key
	`, frameworkID)
	if err != nil {
		return nil, fmt.Errorf("query filters: %w", err)
	}
	defer rows.Close()

	var out []types.Filter
	for rows.Next() {
		var f types.Filter
		var filterType string
		var props sql.NullString
		if err := rows.Scan(&f.ID, &f.FrameworkID, &f.WidgetKey, &f.Key, &f.Title, &filterType, &props); err != nil {
			return nil, fmt.Errorf("scan filter: %w", err)
		}
		f.FilterType = types.FilterType(filterType)
		f.Properties = rawJSON(props)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListExportables returns the exportables declared in a framework.
func (s *SQLiteStore) ListExportables(ctx context.Context, frameworkID string) ([]types.Exportable, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, analysis_framework_id, widget_key, inline, data
		FROM exportables WHERE analysis_framework_id = ?
		ORDER BY widget_key
	`, frameworkID)
	if err != nil {
		return nil, fmt.Errorf("query exportables: %w", err)
	}
	defer rows.Close()

	var out []types.Exportable
	for rows.Next() {
		var e types.Exportable
		var inline int
		var data sql.NullString
		if err := rows.Scan(&e.ID, &e.FrameworkID, &e.WidgetKey, &inline, &data); err != nil {
			return nil, fmt.Errorf("scan exportable: %w", err)
		}
		e.Inline = inline == 1
		e.Data = rawJSON(data)
		out = append(out, e)
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
