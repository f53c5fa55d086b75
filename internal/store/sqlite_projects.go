package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hyperengineering/deep/internal/types"
)

// CreateProject inserts a project and makes its creator a direct member with
// the creator role.
func (s *SQLiteStore) CreateProject(ctx context.Context, p *types.Project) error {
	if p.ID == "" {
		p.ID = newID()
	}
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO projects (id, title, description, is_private, analysis_framework_id, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.Title, p.Description, boolInt(p.IsPrivate), nullString(p.FrameworkID), p.CreatedBy,
			formatTime(ts), formatTime(ts))
		if err != nil {
			return fmt.Errorf("insert project: %w", err)
		}

		var creatorRole string
		if err := tx.QueryRowContext(ctx, `
			SELECT id FROM project_roles WHERE is_creator_role = 1 ORDER BY level DESC LIMIT 1
		`).Scan(&creatorRole); err != nil {
			return fmt.Errorf("load creator role: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO project_memberships (id, project_id, user_id, role_id, is_direct, added_by, joined_at)
			VALUES (?, ?, ?, ?, 1, NULL, ?)
		`, newID(), p.ID, p.CreatedBy, creatorRole, formatTime(ts))
		if err != nil {
			return fmt.Errorf("insert creator membership: %w", err)
		}
		return nil
	})
}

// GetProject retrieves a project by ID.
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*types.Project, error) {
	var p types.Project
	var isPrivate int
	var frameworkID sql.NullString
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, description, is_private, analysis_framework_id, created_by, created_at, updated_at
		FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Title, &p.Description, &isPrivate, &frameworkID, &p.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.IsPrivate = isPrivate == 1
	p.FrameworkID = stringPtr(frameworkID)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	return &p, nil
}

// SetProjectFramework attaches a framework to a project, or detaches it when frameworkID is nil.
func (s *SQLiteStore) SetProjectFramework(ctx context.Context, projectID string, frameworkID *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET analysis_framework_id = ?, updated_at = ? WHERE id = ?
	`, nullString(frameworkID), formatTime(now()), projectID)
	if err != nil {
		return fmt.Errorf("update project framework: %w", err)
	}
	return requireAffected(res)
}

const projectRoleColumns = `pr.id, pr.title, pr.level, pr.setup_permissions, pr.entry_permissions,
	pr.lead_permissions, pr.assessment_permissions, pr.export_permissions, pr.is_creator_role, pr.is_default_role`

func scanProjectRole(row interface{ Scan(...any) error }) (*types.ProjectRole, error) {
	var r types.ProjectRole
	var creator, isDefault int
	if err := row.Scan(&r.ID, &r.Title, &r.Level, &r.SetupPermissions, &r.EntryPermissions,
		&r.LeadPermissions, &r.AssessmentPermissions, &r.ExportPermissions, &creator, &isDefault); err != nil {
		return nil, err
	}
	r.IsCreatorRole = creator == 1
	r.IsDefaultRole = isDefault == 1
	return &r, nil
}

// GetProjectRole retrieves a project role by ID.
func (s *SQLiteStore) GetProjectRole(ctx context.Context, id string) (*types.ProjectRole, error) {
	r, err := scanProjectRole(s.db.QueryRowContext(ctx,
		`SELECT `+projectRoleColumns+` FROM project_roles pr WHERE pr.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan project role: %w", err)
	}
	return r, nil
}

// ListProjectRoles returns all project roles, highest level first.
func (s *SQLiteStore) ListProjectRoles(ctx context.Context) ([]types.ProjectRole, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+projectRoleColumns+` FROM project_roles pr ORDER BY pr.level DESC`)
	if err != nil {
		return nil, fmt.Errorf("query project roles: %w", err)
	}
	defer rows.Close()

	var out []types.ProjectRole
	for rows.Next() {
		r, err := scanProjectRole(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project role: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// TopRoleLevel returns the highest authority level among all project roles.
func (s *SQLiteStore) TopRoleLevel(ctx context.Context) (int, error) {
	return topRoleLevel(ctx, s.db)
}

func topRoleLevel(ctx context.Context, q queryer) (int, error) {
	var level sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(level) FROM project_roles`).Scan(&level); err != nil {
		return 0, fmt.Errorf("query top role level: %w", err)
	}
	return int(level.Int64), nil
}

// GetMembership retrieves the membership of userID in projectID.
func (s *SQLiteStore) GetMembership(ctx context.Context, projectID, userID string) (*types.ProjectMembership, error) {
	return getMembership(ctx, s.db, projectID, userID)
}

func getMembership(ctx context.Context, q queryer, projectID, userID string) (*types.ProjectMembership, error) {
	m, err := scanMembership(q.QueryRowContext(ctx, `
		SELECT id, project_id, user_id, role_id, is_direct, added_by, joined_at
		FROM project_memberships WHERE project_id = ? AND user_id = ?
	`, projectID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan membership: %w", err)
	}
	return m, nil
}

func scanMembership(row interface{ Scan(...any) error }) (*types.ProjectMembership, error) {
	var m types.ProjectMembership
	var direct int
	var addedBy sql.NullString
	var joinedAt string
	if err := row.Scan(&m.ID, &m.ProjectID, &m.UserID, &m.RoleID, &direct, &addedBy, &joinedAt); err != nil {
		return nil, err
	}
	m.IsDirect = direct == 1
	m.AddedBy = stringPtr(addedBy)
	m.JoinedAt = parseTime(joinedAt)
	return &m, nil
}

// MemberRole returns the role of userID in projectID, or ErrNotFound when the
// user is not a member.
func (s *SQLiteStore) MemberRole(ctx context.Context, projectID, userID string) (*types.ProjectRole, error) {
	r, err := scanProjectRole(s.db.QueryRowContext(ctx, `
		SELECT `+projectRoleColumns+`
		FROM project_memberships pm
		JOIN project_roles pr ON pr.id = pm.role_id
		WHERE pm.project_id = ? AND pm.user_id = ?
	`, projectID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan member role: %w", err)
	}
	return r, nil
}

// ListMemberships returns every membership of a project ordered by join time.
func (s *SQLiteStore) ListMemberships(ctx context.Context, projectID string) ([]types.ProjectMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, user_id, role_id, is_direct, added_by, joined_at
		FROM project_memberships WHERE project_id = ?
		ORDER BY joined_at, user_id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	var out []types.ProjectMembership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// CountMembersAtLevel counts the members of a project whose role level is at least level.
func (s *SQLiteStore) CountMembersAtLevel(ctx context.Context, projectID string, level int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM project_memberships pm
		JOIN project_roles pr ON pr.id = pm.role_id
		WHERE pm.project_id = ? AND pr.level >= ?
	`, projectID, level).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}
