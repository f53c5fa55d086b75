// Package access answers visibility and role questions for projects,
// frameworks and entries.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperengineering/deep/internal/store"
	"github.com/hyperengineering/deep/internal/types"
)

// Reader is the read-only view of the store the resolver works on.
type Reader interface {
	GetProject(ctx context.Context, id string) (*types.Project, error)
	GetProjectRole(ctx context.Context, id string) (*types.ProjectRole, error)
	MemberRole(ctx context.Context, projectID, userID string) (*types.ProjectRole, error)
	TopRoleLevel(ctx context.Context) (int, error)
	CountMembersAtLevel(ctx context.Context, projectID string, level int) (int, error)
	FrameworkRole(ctx context.Context, frameworkID, userID string) (*types.FrameworkRole, error)
}

// Area selects one of the permission masks of a project role.
type Area int

const (
	AreaSetup Area = iota
	AreaEntry
	AreaLead
	AreaAssessment
	AreaExport
)

// Mask returns the permission mask of role for the area.
func (a Area) Mask(role *types.ProjectRole) int {
	switch a {
	case AreaSetup:
		return role.SetupPermissions
	case AreaEntry:
		return role.EntryPermissions
	case AreaLead:
		return role.LeadPermissions
	case AreaAssessment:
		return role.AssessmentPermissions
	case AreaExport:
		return role.ExportPermissions
	}
	return 0
}

// Resolver evaluates permissions from memberships and roles.
type Resolver struct {
	reader Reader
}

// NewResolver creates a Resolver over r.
func NewResolver(r Reader) *Resolver {
	return &Resolver{reader: r}
}

// memberRole returns the role of userID in projectID, or nil for non-members.
func (r *Resolver) memberRole(ctx context.Context, projectID, userID string) (*types.ProjectRole, error) {
	role, err := r.reader.MemberRole(ctx, projectID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("member role: %w", err)
	}
	return role, nil
}

// Has reports whether userID holds bit in area of projectID through its membership.
func (r *Resolver) Has(ctx context.Context, userID, projectID string, area Area, bit int) (bool, error) {
	role, err := r.memberRole(ctx, projectID, userID)
	if err != nil || role == nil {
		return false, err
	}
	return types.Can(area.Mask(role), bit), nil
}

// CanViewProject reports whether the project is public or userID is a member.
// Group-derived members hold a membership row and are members here.
func (r *Resolver) CanViewProject(ctx context.Context, userID string, p *types.Project) (bool, error) {
	if !p.IsPrivate {
		return true, nil
	}
	role, err := r.memberRole(ctx, p.ID, userID)
	if err != nil {
		return false, err
	}
	return role != nil, nil
}

// CanModifyProject requires the setup-modify permission.
func (r *Resolver) CanModifyProject(ctx context.Context, userID string, p *types.Project) (bool, error) {
	return r.Has(ctx, userID, p.ID, AreaSetup, types.PermModify)
}

// CanViewFramework reports whether userID can see f. Global frameworks and
// frameworks whose originating project is gone are visible to everyone; the
// rest follow the visibility of their project. IsPrivate does not hide a
// framework, it only restricts its use in other projects.
func (r *Resolver) CanViewFramework(ctx context.Context, userID string, f *types.AnalysisFramework) (bool, error) {
	if f.ProjectID == nil {
		return true, nil
	}
	p, err := r.reader.GetProject(ctx, *f.ProjectID)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get project: %w", err)
	}
	return r.CanViewProject(ctx, userID, p)
}

// CanModifyFramework requires can_edit_framework or authorship.
func (r *Resolver) CanModifyFramework(ctx context.Context, userID string, f *types.AnalysisFramework) (bool, error) {
	if f.CreatedBy == userID {
		return true, nil
	}
	role, err := r.reader.FrameworkRole(ctx, f.ID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("framework role: %w", err)
	}
	return role.CanEditFramework, nil
}

// CanViewEntry lets members with entry-view and anyone on public projects see an entry.
func (r *Resolver) CanViewEntry(ctx context.Context, userID string, p *types.Project) (bool, error) {
	role, err := r.memberRole(ctx, p.ID, userID)
	if err != nil {
		return false, err
	}
	if role == nil {
		return !p.IsPrivate, nil
	}
	return types.Can(role.EntryPermissions, types.PermView), nil
}

// CanModifyEntry covers entries and their attributes.
func (r *Resolver) CanModifyEntry(ctx context.Context, userID string, p *types.Project) (bool, error) {
	return r.Has(ctx, userID, p.ID, AreaEntry, types.PermModify)
}

// CheckAttachFramework decides whether userID may set f as the framework of p.
func (r *Resolver) CheckAttachFramework(ctx context.Context, userID string, p *types.Project, f *types.AnalysisFramework) error {
	ok, err := r.CanModifyProject(ctx, userID, p)
	if err != nil {
		return err
	}
	if !ok {
		return deny(userID, "modify project "+p.ID, "")
	}
	if p.FrameworkID != nil && *p.FrameworkID == f.ID {
		return nil
	}
	return r.CheckUseFramework(ctx, userID, f)
}

// CheckUseFramework decides whether userID may apply f to a project. Public
// frameworks are usable by anyone; private ones need a framework membership
// whose role allows use in other projects.
func (r *Resolver) CheckUseFramework(ctx context.Context, userID string, f *types.AnalysisFramework) error {
	if !f.IsPrivate {
		return nil
	}

	role, err := r.reader.FrameworkRole(ctx, f.ID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: no membership in private framework %s", ErrBadRequest, f.ID)
	}
	if err != nil {
		return fmt.Errorf("framework role: %w", err)
	}
	if !role.CanUseInOtherProjects {
		return deny(userID, "use framework "+f.ID, "role "+role.Title+" cannot use it in other projects")
	}
	return nil
}

// CheckRoleAssignment decides whether actorID may give targetID the role
// newRoleID in projectID. Non-members of the project count as level zero.
func (r *Resolver) CheckRoleAssignment(ctx context.Context, actorID, projectID, targetID, newRoleID string) error {
	action := "assign roles in project " + projectID
	actor, err := r.memberRole(ctx, projectID, actorID)
	if err != nil {
		return err
	}
	if actor == nil || !types.Can(actor.SetupPermissions, types.PermModify) {
		return deny(actorID, action, "")
	}

	newRole, err := r.reader.GetProjectRole(ctx, newRoleID)
	if err != nil {
		return fmt.Errorf("get role: %w", err)
	}
	if newRole.Level > actor.Level {
		return deny(actorID, action, "role "+newRole.Title+" outranks the actor")
	}

	current, err := r.memberRole(ctx, projectID, targetID)
	if err != nil {
		return err
	}
	if current == nil {
		return nil
	}
	if current.Level > actor.Level {
		return deny(actorID, action, "target outranks the actor")
	}
	if newRole.Level < current.Level {
		return r.checkLastTopHolder(ctx, actorID, action, projectID, current)
	}
	return nil
}

// CheckMemberRemoval decides whether actorID may remove targetID from projectID.
// Members may always leave, unless they are the last highest-authority holder.
func (r *Resolver) CheckMemberRemoval(ctx context.Context, actorID, projectID, targetID string) error {
	action := "remove member from project " + projectID
	target, err := r.memberRole(ctx, projectID, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return fmt.Errorf("membership of %s: %w", targetID, store.ErrNotFound)
	}

	if actorID != targetID {
		actor, err := r.memberRole(ctx, projectID, actorID)
		if err != nil {
			return err
		}
		if actor == nil || !types.Can(actor.SetupPermissions, types.PermModify) {
			return deny(actorID, action, "")
		}
		if target.Level > actor.Level {
			return deny(actorID, action, "target outranks the actor")
		}
	}
	return r.checkLastTopHolder(ctx, actorID, action, projectID, target)
}

// CheckGroupRoleAssignment decides whether actorID may attach a user group
// to projectID with roleID. Every member of the group receives roleID, so
// it may not outrank the actor.
func (r *Resolver) CheckGroupRoleAssignment(ctx context.Context, actorID, projectID, roleID string) error {
	action := "attach user group to project " + projectID
	actor, err := r.memberRole(ctx, projectID, actorID)
	if err != nil {
		return err
	}
	if actor == nil || !types.Can(actor.SetupPermissions, types.PermModify) {
		return deny(actorID, action, "")
	}

	role, err := r.reader.GetProjectRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("get role: %w", err)
	}
	if role.Level > actor.Level {
		return deny(actorID, action, "role "+role.Title+" outranks the actor")
	}
	return nil
}

// checkLastTopHolder refuses to strip the role of a highest-authority holder
// when no other holder would remain.
func (r *Resolver) checkLastTopHolder(ctx context.Context, actorID, action, projectID string, role *types.ProjectRole) error {
	top, err := r.reader.TopRoleLevel(ctx)
	if err != nil {
		return fmt.Errorf("top role level: %w", err)
	}
	if role.Level < top {
		return nil
	}
	n, err := r.reader.CountMembersAtLevel(ctx, projectID, top)
	if err != nil {
		return fmt.Errorf("count top members: %w", err)
	}
	if n <= 1 {
		return deny(actorID, action, "the project would lose its last "+role.Title)
	}
	return nil
}
