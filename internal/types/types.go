package types

import (
	"encoding/json"
	"time"
)

// User is an account that can act on projects and frameworks.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// JobStatus tracks the state of a queued background job on its owning resource.
type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobSuccess JobStatus = "success"
	JobFailed  JobStatus = "failed"
)

// ErrorCodeUnknown is the generic error code recorded when a job fails.
const ErrorCodeUnknown = "unknown_error"

// AnalysisFramework is a reusable schema of widgets a project applies to its entries.
type AnalysisFramework struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ProjectID   *string   `json:"project_id,omitempty"` // nil for global/template frameworks
	IsPrivate   bool      `json:"is_private"`
	SyncStatus  JobStatus `json:"sync_status,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FrameworkRole is a permission bundle granted to framework members.
type FrameworkRole struct {
	ID                    string `json:"id"`
	Title                 string `json:"title"`
	CanAddUser            bool   `json:"can_add_user"`
	CanCloneFramework     bool   `json:"can_clone_framework"`
	CanEditFramework      bool   `json:"can_edit_framework"`
	CanUseInOtherProjects bool   `json:"can_use_in_other_projects"`
	IsDefaultRole         bool   `json:"is_default_role"`
}

// FrameworkMembership binds a user to a framework with a role.
type FrameworkMembership struct {
	ID          string    `json:"id"`
	FrameworkID string    `json:"framework_id"`
	UserID      string    `json:"user_id"`
	RoleID      string    `json:"role_id"`
	AddedBy     *string   `json:"added_by,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Widget is a configured annotation field inside a framework.
type Widget struct {
	ID          string          `json:"id"`
	FrameworkID string          `json:"analysis_framework_id"`
	WidgetType  string          `json:"widget_id"`
	Key         string          `json:"key"`
	Title       string          `json:"title"`
	Properties  json.RawMessage `json:"properties,omitempty"`
}

// FilterType describes how filter data of a filter is shaped.
type FilterType string

const (
	FilterNumber     FilterType = "number"
	FilterList       FilterType = "list"
	FilterIntersects FilterType = "intersects"
)

// Filter declares how attribute values of a widget map onto filterable fields.
type Filter struct {
	ID          string          `json:"id"`
	FrameworkID string          `json:"analysis_framework_id"`
	WidgetKey   string          `json:"widget_key"`
	Key         string          `json:"key"`
	Title       string          `json:"title"`
	FilterType  FilterType      `json:"filter_type"`
	Properties  json.RawMessage `json:"properties,omitempty"`
}

// Exportable declares the export-report shape of a widget.
type Exportable struct {
	ID          string          `json:"id"`
	FrameworkID string          `json:"analysis_framework_id"`
	WidgetKey   string          `json:"widget_key"`
	Inline      bool            `json:"inline"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// LeadSourceType is the kind of source a lead was created from.
type LeadSourceType string

const (
	LeadSourceText    LeadSourceType = "text"
	LeadSourceWebsite LeadSourceType = "website"
)

// Lead is a source document inside a project.
type Lead struct {
	ID               string         `json:"id"`
	ProjectID        string         `json:"project_id"`
	Title            string         `json:"title"`
	SourceType       LeadSourceType `json:"source_type"`
	URL              string         `json:"url,omitempty"`
	Body             string         `json:"-"`
	Text             string         `json:"text,omitempty"`
	ExtractionStatus JobStatus      `json:"extraction_status"`
	ExtractionError  string         `json:"extraction_error,omitempty"`
	CreatedBy        string         `json:"created_by"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// EntryType is the variant of an entry.
type EntryType string

const (
	EntryExcerpt    EntryType = "excerpt"
	EntryImage      EntryType = "image"
	EntryDataSeries EntryType = "dataSeries"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryExcerpt, EntryImage, EntryDataSeries:
		return true
	}
	return false
}

// Entry is an annotated excerpt of a lead.
type Entry struct {
	ID              string    `json:"id"`
	LeadID          string    `json:"lead_id"`
	ProjectID       string    `json:"project_id"`
	FrameworkID     string    `json:"analysis_framework_id"`
	EntryType       EntryType `json:"entry_type"`
	Excerpt         string    `json:"excerpt,omitempty"`
	Image           string    `json:"image,omitempty"`
	InformationDate *string   `json:"information_date,omitempty"`
	Order           int       `json:"order"`
	CreatedBy       string    `json:"created_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Attribute is the raw value a user recorded for one entry/widget pair.
type Attribute struct {
	ID       string          `json:"id"`
	EntryID  string          `json:"entry_id"`
	WidgetID string          `json:"widget_id"`
	Data     json.RawMessage `json:"data"`
}

// FilterData is the queryable projection of an attribute for one filter.
type FilterData struct {
	ID         string   `json:"id"`
	EntryID    string   `json:"entry_id"`
	FilterID   string   `json:"filter_id"`
	FilterKey  string   `json:"filter_key"`
	Values     []string `json:"values,omitempty"`
	Number     *int64   `json:"number,omitempty"`
	FromNumber *int64   `json:"from_number,omitempty"`
	ToNumber   *int64   `json:"to_number,omitempty"`
}

// ExportData is the report projection of an attribute for one exportable.
type ExportData struct {
	ID           string          `json:"id"`
	EntryID      string          `json:"entry_id"`
	ExportableID string          `json:"exportable_id"`
	WidgetKey    string          `json:"widget_key"`
	Data         json.RawMessage `json:"data"`
}

// Project owns leads and entries and grants access through memberships.
type Project struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	IsPrivate   bool      `json:"is_private"`
	FrameworkID *string   `json:"analysis_framework_id,omitempty"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission bits used by the project role permission masks.
const (
	PermView   = 1 << iota
	PermCreate
	PermModify
	PermDelete
)

// ProjectRole is a named permission bundle. Higher levels carry more authority.
type ProjectRole struct {
	ID                    string `json:"id"`
	Title                 string `json:"title"`
	Level                 int    `json:"level"`
	SetupPermissions      int    `json:"setup_permissions"`
	EntryPermissions      int    `json:"entry_permissions"`
	LeadPermissions       int    `json:"lead_permissions"`
	AssessmentPermissions int    `json:"assessment_permissions"`
	ExportPermissions     int    `json:"export_permissions"`
	IsCreatorRole         bool   `json:"is_creator_role"`
	IsDefaultRole         bool   `json:"is_default_role"`
}

// Can reports whether mask grants bit.
func Can(mask, bit int) bool {
	return mask&bit == bit
}

// ProjectMembership is the single membership row of a user in a project.
// IsDirect is false when the membership exists only through attached user groups.
type ProjectMembership struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
	RoleID    string    `json:"role_id"`
	IsDirect  bool      `json:"is_direct"`
	AddedBy   *string   `json:"added_by,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}

// ProjectUserGroup attaches a user group to a project.
type ProjectUserGroup struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	GroupID   string    `json:"group_id"`
	RoleID    *string   `json:"role_id,omitempty"`
	AddedBy   *string   `json:"added_by,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}

// JoinRequestStatus is the lifecycle state of a join request.
type JoinRequestStatus string

const (
	JoinPending  JoinRequestStatus = "pending"
	JoinAccepted JoinRequestStatus = "accepted"
	JoinRejected JoinRequestStatus = "rejected"
)

// ProjectJoinRequest is a request by a user to join a project.
type ProjectJoinRequest struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"project_id"`
	RequestedBy string            `json:"requested_by"`
	RoleID      *string           `json:"role_id,omitempty"`
	Status      JoinRequestStatus `json:"status"`
	RequestedAt time.Time         `json:"requested_at"`
	RespondedBy *string           `json:"responded_by,omitempty"`
	RespondedAt *time.Time        `json:"responded_at,omitempty"`
}

// GroupRole is the role of a user inside a user group.
type GroupRole string

const (
	GroupAdmin  GroupRole = "admin"
	GroupNormal GroupRole = "normal"
)

// UserGroup is a named set of users that can be attached to projects.
type UserGroup struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// GroupMembership binds a user to a user group.
type GroupMembership struct {
	GroupID  string    `json:"group_id"`
	UserID   string    `json:"user_id"`
	Role     GroupRole `json:"role"`
	AddedBy  *string   `json:"added_by,omitempty"`
	JoinedAt time.Time `json:"joined_at"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status      string   `json:"status"`
	Version     string   `json:"version"`
	WidgetTypes []string `json:"widget_types"`
	Projects    int64    `json:"projects"`
	Entries     int64    `json:"entries"`
}

// StoreStats holds aggregate counts.
type StoreStats struct {
	Projects   int64 `json:"projects"`
	Frameworks int64 `json:"frameworks"`
	Entries    int64 `json:"entries"`
	Attributes int64 `json:"attributes"`
}

// SyncSummary reports the outcome of a batch widget sync.
type SyncSummary struct {
	Synced int      `json:"synced"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}
