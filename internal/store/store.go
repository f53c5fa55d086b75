package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hyperengineering/deep/internal/types"
)

// AttributeWrite is one attribute value together with everything derived from it.
// Filters are matched against the widget's declared filters by key; Export is
// nil when the widget produced no export payload.
type AttributeWrite struct {
	EntryID  string
	WidgetID string
	Data     json.RawMessage
	Filters  []types.FilterData
	Export   json.RawMessage
}

// WidgetDeclarations is the full set of filters and the exportable a widget declares.
type WidgetDeclarations struct {
	FrameworkID string
	WidgetKey   string
	Filters     []types.Filter
	Exportable  *types.Exportable
}

// CascadeResult counts the membership rows changed by a reconciliation.
type CascadeResult struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Retained int `json:"retained"`
}

func (c *CascadeResult) add(o CascadeResult) {
	c.Added += o.Added
	c.Removed += o.Removed
	c.Retained += o.Retained
}

// Store defines the persistence contract of the platform core.
type Store interface {
	CreateUser(ctx context.Context, u *types.User) error
	GetUser(ctx context.Context, id string) (*types.User, error)

	CreateFramework(ctx context.Context, f *types.AnalysisFramework) error
	GetFramework(ctx context.Context, id string) (*types.AnalysisFramework, error)
	SetFrameworkSyncStatus(ctx context.Context, id string, status types.JobStatus) error
	GetFrameworkRole(ctx context.Context, id string) (*types.FrameworkRole, error)
	FrameworkRole(ctx context.Context, frameworkID, userID string) (*types.FrameworkRole, error)
	AddFrameworkMember(ctx context.Context, m *types.FrameworkMembership) error

	SaveWidget(ctx context.Context, w *types.Widget) error
	GetWidget(ctx context.Context, id string) (*types.Widget, error)
	ListWidgets(ctx context.Context, frameworkID string) ([]types.Widget, error)
	DeleteWidget(ctx context.Context, id string) error
	SyncWidgetDeclarations(ctx context.Context, d WidgetDeclarations) error
	ListFilters(ctx context.Context, frameworkID string) ([]types.Filter, error)
	ListExportables(ctx context.Context, frameworkID string) ([]types.Exportable, error)

	CreateLead(ctx context.Context, l *types.Lead) error
	GetLead(ctx context.Context, id string) (*types.Lead, error)
	SetLeadText(ctx context.Context, id, text string) error
	SetLeadExtractionStatus(ctx context.Context, id string, status types.JobStatus, errorCode string) error

	CreateEntry(ctx context.Context, e *types.Entry) error
	GetEntry(ctx context.Context, id string) (*types.Entry, error)
	SaveAttribute(ctx context.Context, w AttributeWrite) (*types.Attribute, error)
	ListAttributes(ctx context.Context, frameworkID string) ([]types.Attribute, error)
	ListFilterData(ctx context.Context, entryID string) ([]types.FilterData, error)
	ListExportData(ctx context.Context, entryID string) ([]types.ExportData, error)

	CreateProject(ctx context.Context, p *types.Project) error
	GetProject(ctx context.Context, id string) (*types.Project, error)
	SetProjectFramework(ctx context.Context, projectID string, frameworkID *string) error
	GetProjectRole(ctx context.Context, id string) (*types.ProjectRole, error)
	ListProjectRoles(ctx context.Context) ([]types.ProjectRole, error)
	TopRoleLevel(ctx context.Context) (int, error)

	GetMembership(ctx context.Context, projectID, userID string) (*types.ProjectMembership, error)
	MemberRole(ctx context.Context, projectID, userID string) (*types.ProjectRole, error)
	ListMemberships(ctx context.Context, projectID string) ([]types.ProjectMembership, error)
	CountMembersAtLevel(ctx context.Context, projectID string, level int) (int, error)
	UpsertDirectMember(ctx context.Context, projectID, userID, roleID string, addedBy *string) (*types.ProjectMembership, CascadeResult, error)
	ChangeMemberRole(ctx context.Context, projectID, userID, roleID string) error
	RemoveDirectMember(ctx context.Context, projectID, userID string) (CascadeResult, error)

	CreateUserGroup(ctx context.Context, g *types.UserGroup) error
	GetUserGroup(ctx context.Context, id string) (*types.UserGroup, error)
	GetGroupMembership(ctx context.Context, groupID, userID string) (*types.GroupMembership, error)
	AddGroupMember(ctx context.Context, m *types.GroupMembership) (CascadeResult, error)
	RemoveGroupMember(ctx context.Context, groupID, userID string) (CascadeResult, error)
	AttachGroup(ctx context.Context, pug *types.ProjectUserGroup) (CascadeResult, error)
	DetachGroup(ctx context.Context, projectID, groupID string) (CascadeResult, error)

	CreateJoinRequest(ctx context.Context, r *types.ProjectJoinRequest) error
	GetJoinRequest(ctx context.Context, id string) (*types.ProjectJoinRequest, error)
	AcceptJoinRequest(ctx context.Context, id, roleID, respondedBy string) (*types.ProjectMembership, error)
	RejectJoinRequest(ctx context.Context, id, respondedBy string) error
	CancelJoinRequest(ctx context.Context, id string) error

	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
	PurgeExpiredLocks(ctx context.Context) (int64, error)

	GetStats(ctx context.Context) (*types.StoreStats, error)
	Close() error
}
