package access

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/deep/internal/store"
	"github.com/hyperengineering/deep/internal/types"
)

// world is a project with one member per seeded role and an outsider.
type world struct {
	ctx      context.Context
	store    *store.SQLiteStore
	resolver *Resolver
	project  *types.Project

	creator, admin, analyst, reader, outsider string
}

func newWorld(t *testing.T, private bool) *world {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "deep.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	w := &world{ctx: ctx, store: s, resolver: NewResolver(s)}
	w.creator = w.user(t, "creator")
	w.admin = w.user(t, "admin")
	w.analyst = w.user(t, "analyst")
	w.reader = w.user(t, "reader")
	w.outsider = w.user(t, "outsider")

	w.project = &types.Project{Title: "Project", IsPrivate: private, CreatedBy: w.creator}
	require.NoError(t, s.CreateProject(ctx, w.project))
	w.member(t, w.admin, "admin")
	w.member(t, w.analyst, "analyst")
	w.member(t, w.reader, "reader")
	return w
}

func (w *world) user(t *testing.T, name string) string {
	t.Helper()
	u := &types.User{Username: name}
	require.NoError(t, w.store.CreateUser(w.ctx, u))
	return u.ID
}

func (w *world) member(t *testing.T, userID, roleID string) {
	t.Helper()
	_, _, err := w.store.UpsertDirectMember(w.ctx, w.project.ID, userID, roleID, &w.creator)
	require.NoError(t, err)
}

func (w *world) framework(t *testing.T, creator string, private bool, projectID *string) *types.AnalysisFramework {
	t.Helper()
	f := &types.AnalysisFramework{Title: "Framework", IsPrivate: private, CreatedBy: creator, ProjectID: projectID}
	require.NoError(t, w.store.CreateFramework(w.ctx, f))
	return f
}

func (w *world) frameworkMember(t *testing.T, f *types.AnalysisFramework, userID, roleID string) {
	t.Helper()
	require.NoError(t, w.store.AddFrameworkMember(w.ctx, &types.FrameworkMembership{
		FrameworkID: f.ID, UserID: userID, RoleID: roleID,
	}))
}

func TestCanViewProject(t *testing.T) {
	private := newWorld(t, true)
	public := newWorld(t, false)

	tests := []struct {
		name string
		w    *world
		user func(*world) string
		want bool
	}{
		{"private member", private, func(w *world) string { return w.reader }, true},
		{"private outsider", private, func(w *world) string { return w.outsider }, false},
		{"public outsider", public, func(w *world) string { return w.outsider }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.w.resolver.CanViewProject(tt.w.ctx, tt.user(tt.w), tt.w.project)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanViewProject_GroupDerivedMember(t *testing.T) {
	w := newWorld(t, true)
	g := &types.UserGroup{Title: "Group", CreatedBy: w.outsider}
	require.NoError(t, w.store.CreateUserGroup(w.ctx, g))
	_, err := w.store.AttachGroup(w.ctx, &types.ProjectUserGroup{ProjectID: w.project.ID, GroupID: g.ID})
	require.NoError(t, err)

	ok, err := w.resolver.CanViewProject(w.ctx, w.outsider, w.project)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProjectAndEntryPermissions(t *testing.T) {
	w := newWorld(t, true)

	tests := []struct {
		name        string
		user        string
		modifyProj  bool
		viewEntry   bool
		modifyEntry bool
	}{
		{"creator", w.creator, true, true, true},
		{"admin", w.admin, true, true, true},
		{"analyst", w.analyst, false, true, true},
		{"reader", w.reader, false, true, false},
		{"outsider", w.outsider, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.resolver.CanModifyProject(w.ctx, tt.user, w.project)
			require.NoError(t, err)
			assert.Equal(t, tt.modifyProj, got, "modify project")

			got, err = w.resolver.CanViewEntry(w.ctx, tt.user, w.project)
			require.NoError(t, err)
			assert.Equal(t, tt.viewEntry, got, "view entry")

			got, err = w.resolver.CanModifyEntry(w.ctx, tt.user, w.project)
			require.NoError(t, err)
			assert.Equal(t, tt.modifyEntry, got, "modify entry")
		})
	}
}

func TestCanViewEntry_PublicProjectOutsider(t *testing.T) {
	w := newWorld(t, false)

	ok, err := w.resolver.CanViewEntry(w.ctx, w.outsider, w.project)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = w.resolver.CanModifyEntry(w.ctx, w.outsider, w.project)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanViewFramework(t *testing.T) {
	w := newWorld(t, true)
	owner := w.user(t, "owner")

	t.Run("public global framework", func(t *testing.T) {
		f := w.framework(t, owner, false, nil)
		ok, err := w.resolver.CanViewFramework(w.ctx, w.outsider, f)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("public framework of private project", func(t *testing.T) {
		f := w.framework(t, owner, false, &w.project.ID)
		ok, err := w.resolver.CanViewFramework(w.ctx, w.outsider, f)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = w.resolver.CanViewFramework(w.ctx, w.reader, f)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("private global framework", func(t *testing.T) {
		f := w.framework(t, owner, true, nil)

		ok, err := w.resolver.CanViewFramework(w.ctx, w.outsider, f)
		require.NoError(t, err)
		assert.True(t, ok, "global frameworks are visible")

		err = w.resolver.CheckUseFramework(w.ctx, w.outsider, f)
		assert.ErrorIs(t, err, ErrBadRequest, "privacy still restricts use")
	})

	t.Run("private framework of private project", func(t *testing.T) {
		f := w.framework(t, owner, true, &w.project.ID)

		ok, err := w.resolver.CanViewFramework(w.ctx, w.outsider, f)
		require.NoError(t, err)
		assert.False(t, ok)

		w.frameworkMember(t, f, w.outsider, "af-viewer")
		ok, err = w.resolver.CanViewFramework(w.ctx, w.outsider, f)
		require.NoError(t, err)
		assert.False(t, ok, "framework membership does not open the project")

		ok, err = w.resolver.CanViewFramework(w.ctx, w.reader, f)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("private framework of public project", func(t *testing.T) {
		public := &types.Project{Title: "Public", CreatedBy: owner}
		require.NoError(t, w.store.CreateProject(w.ctx, public))
		f := w.framework(t, owner, true, &public.ID)

		ok, err := w.resolver.CanViewFramework(w.ctx, w.outsider, f)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("originating project deleted", func(t *testing.T) {
		gone := "deleted-project"
		f := w.framework(t, owner, true, &gone)

		ok, err := w.resolver.CanViewFramework(w.ctx, w.outsider, f)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestCanModifyFramework(t *testing.T) {
	w := newWorld(t, true)
	owner := w.user(t, "owner")
	f := w.framework(t, owner, true, nil)
	w.frameworkMember(t, f, w.admin, "af-editor")
	w.frameworkMember(t, f, w.analyst, "af-default")

	tests := []struct {
		name string
		user string
		want bool
	}{
		{"creator", owner, true},
		{"editor", w.admin, true},
		{"default role", w.analyst, false},
		{"no membership", w.outsider, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.resolver.CanModifyFramework(w.ctx, tt.user, f)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckAttachFramework(t *testing.T) {
	w := newWorld(t, true)
	owner := w.user(t, "owner")

	t.Run("public framework", func(t *testing.T) {
		f := w.framework(t, owner, false, nil)
		assert.NoError(t, w.resolver.CheckAttachFramework(w.ctx, w.creator, w.project, f))
	})

	t.Run("private framework without membership", func(t *testing.T) {
		f := w.framework(t, owner, true, nil)
		err := w.resolver.CheckAttachFramework(w.ctx, w.creator, w.project, f)
		assert.ErrorIs(t, err, ErrBadRequest)
	})

	t.Run("private framework without use permission", func(t *testing.T) {
		f := w.framework(t, owner, true, nil)
		w.frameworkMember(t, f, w.creator, "af-viewer")
		err := w.resolver.CheckAttachFramework(w.ctx, w.creator, w.project, f)
		assert.ErrorIs(t, err, ErrForbidden)

		var pe *PermissionError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, w.creator, pe.UserID)
	})

	t.Run("private framework with use permission", func(t *testing.T) {
		f := w.framework(t, owner, true, nil)
		w.frameworkMember(t, f, w.creator, "af-default")
		assert.NoError(t, w.resolver.CheckAttachFramework(w.ctx, w.creator, w.project, f))
	})

	t.Run("framework already in use", func(t *testing.T) {
		f := w.framework(t, owner, true, nil)
		require.NoError(t, w.store.SetProjectFramework(w.ctx, w.project.ID, &f.ID))
		p, err := w.store.GetProject(w.ctx, w.project.ID)
		require.NoError(t, err)
		assert.NoError(t, w.resolver.CheckAttachFramework(w.ctx, w.creator, p, f))
	})

	t.Run("actor cannot modify project", func(t *testing.T) {
		f := w.framework(t, owner, false, nil)
		err := w.resolver.CheckAttachFramework(w.ctx, w.analyst, w.project, f)
		assert.ErrorIs(t, err, ErrForbidden)
	})
}

func TestCheckRoleAssignment(t *testing.T) {
	w := newWorld(t, true)

	tests := []struct {
		name    string
		actor   string
		target  string
		role    string
		allowed bool
	}{
		{"admin promotes reader to analyst", w.admin, w.reader, "analyst", true},
		{"admin adds outsider as reader", w.admin, w.outsider, "reader", true},
		{"admin grants role above own", w.admin, w.analyst, "clairvoyant-one", false},
		{"admin demotes creator", w.admin, w.creator, "reader", false},
		{"analyst lacks setup modify", w.analyst, w.reader, "reader", false},
		{"outsider", w.outsider, w.reader, "reader", false},
		{"last top holder demotes self", w.creator, w.creator, "admin", false},
		{"creator demotes admin", w.creator, w.admin, "reader", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.resolver.CheckRoleAssignment(w.ctx, tt.actor, w.project.ID, tt.target, tt.role)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrForbidden)
		})
	}
}

// TestCheckRoleAssignment_RoleLevels grants every seeded role from every
// actor that holds setup-modify. Granting a role above the actor's own
// level is always refused.
func TestCheckRoleAssignment_RoleLevels(t *testing.T) {
	w := newWorld(t, true)
	roles, err := w.store.ListProjectRoles(w.ctx)
	require.NoError(t, err)
	require.NotEmpty(t, roles)

	actors := map[string]string{"clairvoyant-one": w.creator, "admin": w.admin}
	for _, actorRole := range roles {
		actor, ok := actors[actorRole.ID]
		if !ok {
			assert.False(t, types.Can(actorRole.SetupPermissions, types.PermModify),
				"role %s holds setup-modify but has no actor", actorRole.ID)
			continue
		}
		for _, target := range roles {
			t.Run(actorRole.ID+" grants "+target.ID, func(t *testing.T) {
				err := w.resolver.CheckRoleAssignment(w.ctx, actor, w.project.ID, w.outsider, target.ID)
				if target.Level > actorRole.Level {
					assert.ErrorIs(t, err, ErrForbidden)
				} else {
					assert.NoError(t, err)
				}

				err = w.resolver.CheckGroupRoleAssignment(w.ctx, actor, w.project.ID, target.ID)
				if target.Level > actorRole.Level {
					assert.ErrorIs(t, err, ErrForbidden)
				} else {
					assert.NoError(t, err)
				}
			})
		}
	}
}

func TestCheckRoleAssignment_SecondTopHolderAllowsDemotion(t *testing.T) {
	w := newWorld(t, true)
	w.member(t, w.admin, "clairvoyant-one")

	assert.NoError(t, w.resolver.CheckRoleAssignment(w.ctx, w.creator, w.project.ID, w.creator, "admin"))
}

func TestCheckRoleAssignment_UnknownRole(t *testing.T) {
	w := newWorld(t, true)

	err := w.resolver.CheckRoleAssignment(w.ctx, w.creator, w.project.ID, w.reader, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestCheckGroupRoleAssignment(t *testing.T) {
	w := newWorld(t, true)

	tests := []struct {
		name    string
		actor   string
		role    string
		allowed bool
	}{
		{"creator grants top role", w.creator, "clairvoyant-one", true},
		{"admin grants own level", w.admin, "admin", true},
		{"admin grants analyst", w.admin, "analyst", true},
		{"admin grants role above own", w.admin, "clairvoyant-one", false},
		{"analyst lacks setup modify", w.analyst, "reader", false},
		{"outsider", w.outsider, "reader", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.resolver.CheckGroupRoleAssignment(w.ctx, tt.actor, w.project.ID, tt.role)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrForbidden)
		})
	}

	t.Run("unknown role", func(t *testing.T) {
		err := w.resolver.CheckGroupRoleAssignment(w.ctx, w.creator, w.project.ID, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestCheckMemberRemoval(t *testing.T) {
	w := newWorld(t, true)

	tests := []struct {
		name    string
		actor   string
		target  string
		allowed bool
	}{
		{"reader leaves", w.reader, w.reader, true},
		{"admin removes analyst", w.admin, w.analyst, true},
		{"analyst removes reader", w.analyst, w.reader, false},
		{"admin removes creator", w.admin, w.creator, false},
		{"last top holder leaves", w.creator, w.creator, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := w.resolver.CheckMemberRemoval(w.ctx, tt.actor, w.project.ID, tt.target)
			if tt.allowed {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrForbidden)
		})
	}
}

func TestCheckMemberRemoval_NotAMember(t *testing.T) {
	w := newWorld(t, true)

	err := w.resolver.CheckMemberRemoval(w.ctx, w.creator, w.project.ID, w.outsider)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPermissionError(t *testing.T) {
	err := deny("u1", "modify project p1", "")
	assert.Equal(t, "user u1 may not modify project p1", err.Error())
	assert.ErrorIs(t, err, ErrForbidden)

	err = deny("u1", "use framework f1", "role Viewer cannot use it in other projects")
	assert.Contains(t, err.Error(), ": role Viewer")
}
