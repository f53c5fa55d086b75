// Package membership applies membership changes to projects and user groups
// after checking them against the access resolver. Every change that can
// affect project reachability cascades through the store in one transaction.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/deep/internal/access"
	"github.com/hyperengineering/deep/internal/metrics"
	"github.com/hyperengineering/deep/internal/store"
	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/validation"
)

// Store is the persistence the membership service depends on.
type Store interface {
	GetProject(ctx context.Context, id string) (*types.Project, error)
	GetProjectRole(ctx context.Context, id string) (*types.ProjectRole, error)
	ListProjectRoles(ctx context.Context) ([]types.ProjectRole, error)
	GetMembership(ctx context.Context, projectID, userID string) (*types.ProjectMembership, error)
	ListMemberships(ctx context.Context, projectID string) ([]types.ProjectMembership, error)
	UpsertDirectMember(ctx context.Context, projectID, userID, roleID string, addedBy *string) (*types.ProjectMembership, store.CascadeResult, error)
	ChangeMemberRole(ctx context.Context, projectID, userID, roleID string) error
	RemoveDirectMember(ctx context.Context, projectID, userID string) (store.CascadeResult, error)

	CreateUserGroup(ctx context.Context, g *types.UserGroup) error
	GetUserGroup(ctx context.Context, id string) (*types.UserGroup, error)
	GetGroupMembership(ctx context.Context, groupID, userID string) (*types.GroupMembership, error)
	AddGroupMember(ctx context.Context, m *types.GroupMembership) (store.CascadeResult, error)
	RemoveGroupMember(ctx context.Context, groupID, userID string) (store.CascadeResult, error)
	AttachGroup(ctx context.Context, pug *types.ProjectUserGroup) (store.CascadeResult, error)
	DetachGroup(ctx context.Context, projectID, groupID string) (store.CascadeResult, error)

	CreateJoinRequest(ctx context.Context, r *types.ProjectJoinRequest) error
	GetJoinRequest(ctx context.Context, id string) (*types.ProjectJoinRequest, error)
	AcceptJoinRequest(ctx context.Context, id, roleID, respondedBy string) (*types.ProjectMembership, error)
	RejectJoinRequest(ctx context.Context, id, respondedBy string) error
	CancelJoinRequest(ctx context.Context, id string) error
}

// Service is the membership cascade engine.
type Service struct {
	store    Store
	resolver *access.Resolver
	metrics  *metrics.Metrics
}

// NewService creates a Service. m may be nil.
func NewService(s Store, r *access.Resolver, m *metrics.Metrics) *Service {
	return &Service{store: s, resolver: r, metrics: m}
}

func (s *Service) record(op string, res store.CascadeResult, projectID string) {
	s.metrics.RecordCascade(op, res.Added, res.Removed, res.Retained)
	slog.Info("membership cascade",
		"component", "membership",
		"action", op,
		"project_id", projectID,
		"added", res.Added,
		"removed", res.Removed,
		"retained", res.Retained,
	)
}

// defaultRole returns the id of the default project role.
func (s *Service) defaultRole(ctx context.Context) (string, error) {
	roles, err := s.store.ListProjectRoles(ctx)
	if err != nil {
		return "", fmt.Errorf("list roles: %w", err)
	}
	for _, r := range roles {
		if r.IsDefaultRole {
			return r.ID, nil
		}
	}
	return "", fmt.Errorf("default project role: %w", store.ErrNotFound)
}

// requireModify loads the project and checks that actorID may modify it.
func (s *Service) requireModify(ctx context.Context, actorID, projectID string) (*types.Project, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	ok, err := s.resolver.CanModifyProject(ctx, actorID, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &access.PermissionError{UserID: actorID, Action: "modify project " + projectID}
	}
	return p, nil
}

// AddMember makes userID a direct member of projectID with roleID, or
// overwrites the role of an existing membership. An empty roleID selects the
// default role. A pending join request of the user is accepted.
func (s *Service) AddMember(ctx context.Context, actorID, projectID, userID, roleID string) (*types.ProjectMembership, error) {
	if roleID == "" {
		var err error
		if roleID, err = s.defaultRole(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.resolver.CheckRoleAssignment(ctx, actorID, projectID, userID, roleID); err != nil {
		return nil, err
	}

	m, res, err := s.store.UpsertDirectMember(ctx, projectID, userID, roleID, &actorID)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	s.record("add_member", res, projectID)
	return m, nil
}

// ChangeRole changes the role of an existing member.
func (s *Service) ChangeRole(ctx context.Context, actorID, projectID, userID, roleID string) (*types.ProjectMembership, error) {
	if _, err := s.store.GetMembership(ctx, projectID, userID); err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	if err := s.resolver.CheckRoleAssignment(ctx, actorID, projectID, userID, roleID); err != nil {
		return nil, err
	}
	if err := s.store.ChangeMemberRole(ctx, projectID, userID, roleID); err != nil {
		return nil, fmt.Errorf("change role: %w", err)
	}

	slog.Info("member role changed",
		"component", "membership",
		"action", "change_role",
		"project_id", projectID,
		"user_id", userID,
		"role_id", roleID,
	)
	return s.store.GetMembership(ctx, projectID, userID)
}

// RemoveMember removes the direct membership of userID. The membership row
// stays while an attached user group still reaches the user.
func (s *Service) RemoveMember(ctx context.Context, actorID, projectID, userID string) (store.CascadeResult, error) {
	if err := s.resolver.CheckMemberRemoval(ctx, actorID, projectID, userID); err != nil {
		return store.CascadeResult{}, err
	}
	res, err := s.store.RemoveDirectMember(ctx, projectID, userID)
	if err != nil {
		return res, fmt.Errorf("remove member: %w", err)
	}
	s.record("remove_member", res, projectID)
	return res, nil
}

// ListMembers returns the memberships of a project visible to actorID.
func (s *Service) ListMembers(ctx context.Context, actorID, projectID string) ([]types.ProjectMembership, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	ok, err := s.resolver.CanViewProject(ctx, actorID, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("get project: %w", store.ErrNotFound)
	}
	return s.store.ListMemberships(ctx, projectID)
}

// AttachGroup attaches a user group to a project. Members of the group become
// project members with roleID, or the default role when roleID is nil.
func (s *Service) AttachGroup(ctx context.Context, actorID, projectID, groupID string, roleID *string) (*types.ProjectUserGroup, error) {
	if _, err := s.requireModify(ctx, actorID, projectID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUserGroup(ctx, groupID); err != nil {
		return nil, fmt.Errorf("get user group: %w", err)
	}
	if roleID != nil {
		if err := s.resolver.CheckGroupRoleAssignment(ctx, actorID, projectID, *roleID); err != nil {
			return nil, err
		}
	}

	pug := &types.ProjectUserGroup{ProjectID: projectID, GroupID: groupID, RoleID: roleID, AddedBy: &actorID}
	res, err := s.store.AttachGroup(ctx, pug)
	if err != nil {
		return nil, fmt.Errorf("attach group: %w", err)
	}
	s.record("attach_group", res, projectID)
	return pug, nil
}

// DetachGroup detaches a user group from a project.
func (s *Service) DetachGroup(ctx context.Context, actorID, projectID, groupID string) (store.CascadeResult, error) {
	if _, err := s.requireModify(ctx, actorID, projectID); err != nil {
		return store.CascadeResult{}, err
	}
	res, err := s.store.DetachGroup(ctx, projectID, groupID)
	if err != nil {
		return res, fmt.Errorf("detach group: %w", err)
	}
	s.record("detach_group", res, projectID)
	return res, nil
}

// CreateGroup creates a user group administered by actorID.
func (s *Service) CreateGroup(ctx context.Context, actorID, title string) (*types.UserGroup, error) {
	if err := validation.AsError(validation.ValidateUserGroup(title)); err != nil {
		return nil, err
	}
	g := &types.UserGroup{Title: title, CreatedBy: actorID}
	if err := s.store.CreateUserGroup(ctx, g); err != nil {
		return nil, fmt.Errorf("create user group: %w", err)
	}
	return g, nil
}

// requireGroupAdmin checks that actorID administers groupID.
func (s *Service) requireGroupAdmin(ctx context.Context, actorID, groupID string) error {
	if _, err := s.store.GetUserGroup(ctx, groupID); err != nil {
		return fmt.Errorf("get user group: %w", err)
	}
	gm, err := s.store.GetGroupMembership(ctx, groupID, actorID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("get group membership: %w", err)
	}
	if gm == nil || gm.Role != types.GroupAdmin {
		return &access.PermissionError{UserID: actorID, Action: "manage user group " + groupID}
	}
	return nil
}

// AddGroupMember adds userID to a group and cascades the new member into
// every project the group is attached to.
func (s *Service) AddGroupMember(ctx context.Context, actorID, groupID, userID string, role types.GroupRole) (*types.GroupMembership, error) {
	if err := s.requireGroupAdmin(ctx, actorID, groupID); err != nil {
		return nil, err
	}
	gm := &types.GroupMembership{GroupID: groupID, UserID: userID, Role: role, AddedBy: &actorID}
	res, err := s.store.AddGroupMember(ctx, gm)
	if err != nil {
		return nil, fmt.Errorf("add group member: %w", err)
	}
	s.record("add_group_member", res, "")
	return gm, nil
}

// RemoveGroupMember removes userID from a group. Users may always leave a group.
func (s *Service) RemoveGroupMember(ctx context.Context, actorID, groupID, userID string) (store.CascadeResult, error) {
	if actorID != userID {
		if err := s.requireGroupAdmin(ctx, actorID, groupID); err != nil {
			return store.CascadeResult{}, err
		}
	}
	res, err := s.store.RemoveGroupMember(ctx, groupID, userID)
	if err != nil {
		return res, fmt.Errorf("remove group member: %w", err)
	}
	s.record("remove_group_member", res, "")
	return res, nil
}

// RequestJoin files a join request of userID for a project it can see and is
// not yet a member of.
func (s *Service) RequestJoin(ctx context.Context, userID, projectID string, roleID *string) (*types.ProjectJoinRequest, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	if p.IsPrivate {
		return nil, fmt.Errorf("get project: %w", store.ErrNotFound)
	}
	if _, err := s.store.GetMembership(ctx, projectID, userID); err == nil {
		return nil, fmt.Errorf("%w: already a member of project %s", store.ErrDuplicate, projectID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get membership: %w", err)
	}

	r := &types.ProjectJoinRequest{ProjectID: projectID, RequestedBy: userID, RoleID: roleID}
	if err := s.store.CreateJoinRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("create join request: %w", err)
	}
	slog.Info("join requested",
		"component", "membership",
		"action", "request_join",
		"project_id", projectID,
		"user_id", userID,
	)
	return r, nil
}

// AcceptJoinRequest accepts a pending request and makes the requester a
// direct member with roleID, the requested role, or the default role.
func (s *Service) AcceptJoinRequest(ctx context.Context, actorID, requestID, roleID string) (*types.ProjectMembership, error) {
	r, err := s.store.GetJoinRequest(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get join request: %w", err)
	}

	effective := roleID
	if effective == "" && r.RoleID != nil {
		effective = *r.RoleID
	}
	if effective == "" {
		if effective, err = s.defaultRole(ctx); err != nil {
			return nil, err
		}
	}
	if err := s.resolver.CheckRoleAssignment(ctx, actorID, r.ProjectID, r.RequestedBy, effective); err != nil {
		return nil, err
	}

	m, err := s.store.AcceptJoinRequest(ctx, requestID, effective, actorID)
	if err != nil {
		return nil, fmt.Errorf("accept join request: %w", err)
	}
	slog.Info("join request accepted",
		"component", "membership",
		"action", "accept_join_request",
		"project_id", r.ProjectID,
		"user_id", r.RequestedBy,
		"role_id", effective,
	)
	return m, nil
}

// RejectJoinRequest rejects a pending request.
func (s *Service) RejectJoinRequest(ctx context.Context, actorID, requestID string) error {
	r, err := s.store.GetJoinRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("get join request: %w", err)
	}
	if _, err := s.requireModify(ctx, actorID, r.ProjectID); err != nil {
		return err
	}
	if err := s.store.RejectJoinRequest(ctx, requestID, actorID); err != nil {
		return fmt.Errorf("reject join request: %w", err)
	}
	return nil
}

// CancelJoinRequest withdraws a pending request. Only the requester may cancel.
func (s *Service) CancelJoinRequest(ctx context.Context, actorID, requestID string) error {
	r, err := s.store.GetJoinRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("get join request: %w", err)
	}
	if r.RequestedBy != actorID {
		return &access.PermissionError{UserID: actorID, Action: "cancel join request " + requestID}
	}
	if err := s.store.CancelJoinRequest(ctx, requestID); err != nil {
		return fmt.Errorf("cancel join request: %w", err)
	}
	return nil
}
