package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hyperengineering/deep/internal/reach"
	"github.com/hyperengineering/deep/internal/types"
)

// reconcile recomputes the required member set of a project from its direct
// members and attached groups and applies the difference with prepared
// statements inside tx. Derived rows are added by actor.
func reconcile(ctx context.Context, tx *sql.Tx, projectID string, actor *string) (CascadeResult, error) {
	top, err := topRoleLevel(ctx, tx)
	if err != nil {
		return CascadeResult{}, err
	}

	var defaultRole string
	var defaultLevel int
	if err := tx.QueryRowContext(ctx, `
		SELECT id, level FROM project_roles WHERE is_default_role = 1 ORDER BY level LIMIT 1
	`).Scan(&defaultRole, &defaultLevel); err != nil {
		return CascadeResult{}, fmt.Errorf("load default role: %w", err)
	}

	existing, paths, err := loadMembershipRows(ctx, tx, projectID)
	if err != nil {
		return CascadeResult{}, err
	}

	groupPaths, err := loadGroupPaths(ctx, tx, projectID, defaultRole, defaultLevel)
	if err != nil {
		return CascadeResult{}, err
	}
	paths = append(paths, groupPaths...)

	plan := reach.Compute(existing, reach.Required(paths), top)
	if plan.Empty() {
		return CascadeResult{}, nil
	}
	if err := applyPlan(ctx, tx, projectID, plan, actor); err != nil {
		return CascadeResult{}, err
	}
	return CascadeResult{Added: len(plan.Insert), Removed: len(plan.Delete), Retained: len(plan.Keep)}, nil
}

func loadMembershipRows(ctx context.Context, tx *sql.Tx, projectID string) ([]reach.Row, []reach.Path, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT pm.user_id, pm.role_id, pr.level, pm.is_direct
		FROM project_memberships pm
		JOIN project_roles pr ON pr.id = pm.role_id
		WHERE pm.project_id = ?
	`, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("query memberships: %w", err)
	}
	defer rows.Close()

	var existing []reach.Row
	var direct []reach.Path
	for rows.Next() {
		var r reach.Row
		var isDirect int
		if err := rows.Scan(&r.UserID, &r.RoleID, &r.Level, &isDirect); err != nil {
			return nil, nil, fmt.Errorf("scan membership: %w", err)
		}
		r.Direct = isDirect == 1
		existing = append(existing, r)
		if r.Direct {
			direct = append(direct, reach.Path{UserID: r.UserID, RoleID: r.RoleID, Level: r.Level, Direct: true})
		}
	}
	return existing, direct, rows.Err()
}

func loadGroupPaths(ctx context.Context, tx *sql.Tx, projectID, defaultRole string, defaultLevel int) ([]reach.Path, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT gm.user_id, pug.role_id, pr.level
		FROM project_user_groups pug
		JOIN group_memberships gm ON gm.group_id = pug.group_id
		LEFT JOIN project_roles pr ON pr.id = pug.role_id
		WHERE pug.project_id = ?
		ORDER BY pug.joined_at, pug.id, gm.user_id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	var paths []reach.Path
	for rows.Next() {
		var p reach.Path
		var roleID sql.NullString
		var level sql.NullInt64
		if err := rows.Scan(&p.UserID, &roleID, &level); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		if roleID.Valid {
			p.RoleID, p.Level = roleID.String, int(level.Int64)
		} else {
			p.RoleID, p.Level = defaultRole, defaultLevel
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

func applyPlan(ctx context.Context, tx *sql.Tx, projectID string, plan reach.Plan, actor *string) error {
	if len(plan.Insert) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO project_memberships (id, project_id, user_id, role_id, is_direct, added_by, joined_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare membership insert: %w", err)
		}
		defer stmt.Close()

		ts := formatTime(now())
		for _, p := range plan.Insert {
			if _, err := stmt.ExecContext(ctx, newID(), projectID, p.UserID, p.RoleID, boolInt(p.Direct), nullString(actor), ts); err != nil {
				return fmt.Errorf("insert membership %s: %w", p.UserID, err)
			}
		}
	}

	if len(plan.Delete) > 0 {
		stmt, err := tx.PrepareContext(ctx, `DELETE FROM project_memberships WHERE project_id = ? AND user_id = ?`)
		if err != nil {
			return fmt.Errorf("prepare membership delete: %w", err)
		}
		defer stmt.Close()

		for _, uid := range plan.Delete {
			if _, err := stmt.ExecContext(ctx, projectID, uid); err != nil {
				return fmt.Errorf("delete membership %s: %w", uid, err)
			}
		}
	}

	if len(plan.Keep) > 0 {
		stmt, err := tx.PrepareContext(ctx, `UPDATE project_memberships SET is_direct = 1 WHERE project_id = ? AND user_id = ?`)
		if err != nil {
			return fmt.Errorf("prepare membership retain: %w", err)
		}
		defer stmt.Close()

		for _, uid := range plan.Keep {
			if _, err := stmt.ExecContext(ctx, projectID, uid); err != nil {
				return fmt.Errorf("retain membership %s: %w", uid, err)
			}
		}
	}
	return nil
}

// attachedProjects lists the projects a group is attached to.
func attachedProjects(ctx context.Context, tx *sql.Tx, groupID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT project_id FROM project_user_groups WHERE group_id = ? ORDER BY project_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query attached projects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func reconcileAll(ctx context.Context, tx *sql.Tx, projectIDs []string, actor *string) (CascadeResult, error) {
	var total CascadeResult
	for _, pid := range projectIDs {
		res, err := reconcile(ctx, tx, pid, actor)
		if err != nil {
			return CascadeResult{}, fmt.Errorf("reconcile project %s: %w", pid, err)
		}
		total.add(res)
	}
	return total, nil
}

// UpsertDirectMember creates a direct membership or overwrites the role of an
// existing one, then accepts any pending join request of the user with
// responded_by set to addedBy.
func (s *SQLiteStore) UpsertDirectMember(ctx context.Context, projectID, userID, roleID string, addedBy *string) (*types.ProjectMembership, CascadeResult, error) {
	var m *types.ProjectMembership
	var res CascadeResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		m, res, err = upsertDirectMember(ctx, tx, projectID, userID, roleID, addedBy)
		return err
	})
	if err != nil {
		return nil, CascadeResult{}, err
	}
	return m, res, nil
}

func upsertDirectMember(ctx context.Context, tx *sql.Tx, projectID, userID, roleID string, addedBy *string) (*types.ProjectMembership, CascadeResult, error) {
	ts := formatTime(now())
	_, err := tx.ExecContext(ctx, `
		INSERT INTO project_memberships (id, project_id, user_id, role_id, is_direct, added_by, joined_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (project_id, user_id) DO UPDATE SET role_id = excluded.role_id, is_direct = 1
	`, newID(), projectID, userID, roleID, nullString(addedBy), ts)
	if err != nil {
		return nil, CascadeResult{}, fmt.Errorf("upsert membership: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE project_join_requests SET status = ?, responded_by = ?, responded_at = ?
		WHERE project_id = ? AND requested_by = ? AND status = ?
	`, string(types.JoinAccepted), nullString(addedBy), ts, projectID, userID, string(types.JoinPending))
	if err != nil {
		return nil, CascadeResult{}, fmt.Errorf("accept pending join request: %w", err)
	}

	res, err := reconcile(ctx, tx, projectID, addedBy)
	if err != nil {
		return nil, CascadeResult{}, err
	}

	m, err := getMembership(ctx, tx, projectID, userID)
	if err != nil {
		return nil, CascadeResult{}, err
	}
	return m, res, nil
}

// ChangeMemberRole sets the role of an existing membership.
func (s *SQLiteStore) ChangeMemberRole(ctx context.Context, projectID, userID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE project_memberships SET role_id = ? WHERE project_id = ? AND user_id = ?
	`, roleID, projectID, userID)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	return requireAffected(res)
}

// RemoveDirectMember clears the direct flag of a membership. The row itself
// is removed unless a group attached to the project still reaches the user.
func (s *SQLiteStore) RemoveDirectMember(ctx context.Context, projectID, userID string) (CascadeResult, error) {
	var out CascadeResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE project_memberships SET is_direct = 0 WHERE project_id = ? AND user_id = ?
		`, projectID, userID)
		if err != nil {
			return fmt.Errorf("clear direct membership: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		out, err = reconcile(ctx, tx, projectID, nil)
		return err
	})
	return out, err
}

// CreateUserGroup inserts a group with its creator as group admin.
func (s *SQLiteStore) CreateUserGroup(ctx context.Context, g *types.UserGroup) error {
	if g.ID == "" {
		g.ID = newID()
	}
	g.CreatedAt = now()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO user_groups (id, title, created_by, created_at) VALUES (?, ?, ?, ?)
		`, g.ID, g.Title, g.CreatedBy, formatTime(g.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert user group: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO group_memberships (group_id, user_id, role, added_by, joined_at) VALUES (?, ?, ?, NULL, ?)
		`, g.ID, g.CreatedBy, string(types.GroupAdmin), formatTime(g.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert group admin: %w", err)
		}
		return nil
	})
}

// GetUserGroup retrieves a user group by ID.
func (s *SQLiteStore) GetUserGroup(ctx context.Context, id string) (*types.UserGroup, error) {
	var g types.UserGroup
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, created_by, created_at FROM user_groups WHERE id = ?
	`, id).Scan(&g.ID, &g.Title, &g.CreatedBy, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user group: %w", err)
	}
	g.CreatedAt = parseTime(createdAt)
	return &g, nil
}

// GetGroupMembership retrieves the membership of userID in groupID.
func (s *SQLiteStore) GetGroupMembership(ctx context.Context, groupID, userID string) (*types.GroupMembership, error) {
	var m types.GroupMembership
	var role, joinedAt string
	var addedBy sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT group_id, user_id, role, added_by, joined_at FROM group_memberships WHERE group_id = ? AND user_id = ?
	`, groupID, userID).Scan(&m.GroupID, &m.UserID, &role, &addedBy, &joinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan group membership: %w", err)
	}
	m.Role = types.GroupRole(role)
	m.AddedBy = stringPtr(addedBy)
	m.JoinedAt = parseTime(joinedAt)
	return &m, nil
}

// AddGroupMember adds a user to a group and reconciles every project the
// group is attached to.
func (s *SQLiteStore) AddGroupMember(ctx context.Context, m *types.GroupMembership) (CascadeResult, error) {
	if m.Role == "" {
		m.Role = types.GroupNormal
	}
	m.JoinedAt = now()

	var out CascadeResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO group_memberships (group_id, user_id, role, added_by, joined_at) VALUES (?, ?, ?, ?, ?)
		`, m.GroupID, m.UserID, string(m.Role), nullString(m.AddedBy), formatTime(m.JoinedAt))
		if err != nil {
			return fmt.Errorf("insert group membership: %w", mapConstraint(err))
		}

		projects, err := attachedProjects(ctx, tx, m.GroupID)
		if err != nil {
			return err
		}
		out, err = reconcileAll(ctx, tx, projects, m.AddedBy)
		return err
	})
	return out, err
}

// RemoveGroupMember removes a user from a group and reconciles every project
// the group is attached to.
func (s *SQLiteStore) RemoveGroupMember(ctx context.Context, groupID, userID string) (CascadeResult, error) {
	var out CascadeResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM group_memberships WHERE group_id = ? AND user_id = ?`, groupID, userID)
		if err != nil {
			return fmt.Errorf("delete group membership: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}

		projects, err := attachedProjects(ctx, tx, groupID)
		if err != nil {
			return err
		}
		out, err = reconcileAll(ctx, tx, projects, nil)
		return err
	})
	return out, err
}

// AttachGroup attaches a user group to a project and creates memberships for
// group members that lack one.
func (s *SQLiteStore) AttachGroup(ctx context.Context, pug *types.ProjectUserGroup) (CascadeResult, error) {
	if pug.ID == "" {
		pug.ID = newID()
	}
	pug.JoinedAt = now()

	var out CascadeResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO project_user_groups (id, project_id, group_id, role_id, added_by, joined_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, pug.ID, pug.ProjectID, pug.GroupID, nullString(pug.RoleID), nullString(pug.AddedBy), formatTime(pug.JoinedAt))
		if err != nil {
			return fmt.Errorf("insert project user group: %w", mapConstraint(err))
		}
		out, err = reconcile(ctx, tx, pug.ProjectID, pug.AddedBy)
		return err
	})
	return out, err
}

// DetachGroup detaches a user group from a project and removes memberships
// that were only reachable through it.
func (s *SQLiteStore) DetachGroup(ctx context.Context, projectID, groupID string) (CascadeResult, error) {
	var out CascadeResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM project_user_groups WHERE project_id = ? AND group_id = ?
		`, projectID, groupID)
		if err != nil {
			return fmt.Errorf("delete project user group: %w", err)
		}
		if err := requireAffected(res); err != nil {
			return err
		}
		out, err = reconcile(ctx, tx, projectID, nil)
		return err
	})
	return out, err
}

// CreateJoinRequest inserts a pending join request. A second pending request
// for the same project and user returns ErrDuplicate.
func (s *SQLiteStore) CreateJoinRequest(ctx context.Context, r *types.ProjectJoinRequest) error {
	if r.ID == "" {
		r.ID = newID()
	}
	r.Status = types.JoinPending
	r.RequestedAt = now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_join_requests (id, project_id, requested_by, role_id, status, requested_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.ID, r.ProjectID, r.RequestedBy, nullString(r.RoleID), string(r.Status), formatTime(r.RequestedAt))
	if err != nil {
		return fmt.Errorf("insert join request: %w", mapConstraint(err))
	}
	return nil
}

// GetJoinRequest retrieves a join request by ID.
func (s *SQLiteStore) GetJoinRequest(ctx context.Context, id string) (*types.ProjectJoinRequest, error) {
	return getJoinRequest(ctx, s.db, id)
}

func getJoinRequest(ctx context.Context, q queryer, id string) (*types.ProjectJoinRequest, error) {
	var r types.ProjectJoinRequest
	var roleID, respondedBy, respondedAt sql.NullString
	var status, requestedAt string
	err := q.QueryRowContext(ctx, `
		SELECT id, project_id, requested_by, role_id, status, requested_at, responded_by, responded_at
		FROM project_join_requests WHERE id = ?
	`, id).Scan(&r.ID, &r.ProjectID, &r.RequestedBy, &roleID, &status, &requestedAt, &respondedBy, &respondedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan join request: %w", err)
	}
	r.RoleID = stringPtr(roleID)
	r.Status = types.JoinRequestStatus(status)
	r.RequestedAt = parseTime(requestedAt)
	r.RespondedBy = stringPtr(respondedBy)
	r.RespondedAt = parseNullTime(respondedAt)
	return &r, nil
}

// AcceptJoinRequest accepts a pending request and makes the requester a
// direct member. roleID overrides the requested role; when both are empty the
// default project role is used.
func (s *SQLiteStore) AcceptJoinRequest(ctx context.Context, id, roleID, respondedBy string) (*types.ProjectMembership, error) {
	var m *types.ProjectMembership
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		r, err := getJoinRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if r.Status != types.JoinPending {
			return fmt.Errorf("join request %s is %s: %w", id, r.Status, ErrNotFound)
		}

		if roleID == "" && r.RoleID != nil {
			roleID = *r.RoleID
		}
		if roleID == "" {
			if err := tx.QueryRowContext(ctx, `
				SELECT id FROM project_roles WHERE is_default_role = 1 ORDER BY level LIMIT 1
			`).Scan(&roleID); err != nil {
				return fmt.Errorf("load default role: %w", err)
			}
		}

		m, _, err = upsertDirectMember(ctx, tx, r.ProjectID, r.RequestedBy, roleID, &respondedBy)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RejectJoinRequest rejects a pending join request.
func (s *SQLiteStore) RejectJoinRequest(ctx context.Context, id, respondedBy string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE project_join_requests SET status = ?, responded_by = ?, responded_at = ?
		WHERE id = ? AND status = ?
	`, string(types.JoinRejected), respondedBy, formatTime(now()), id, string(types.JoinPending))
	if err != nil {
		return fmt.Errorf("reject join request: %w", err)
	}
	return requireAffected(res)
}

// CancelJoinRequest deletes a pending join request.
func (s *SQLiteStore) CancelJoinRequest(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM project_join_requests WHERE id = ? AND status = ?
	`, id, string(types.JoinPending))
	if err != nil {
		return fmt.Errorf("cancel join request: %w", err)
	}
	return requireAffected(res)
}
