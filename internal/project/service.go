// Package project is the authorized entry point for projects, frameworks,
// widgets, leads and entries. Every operation resolves the acting user's
// permissions before touching the store.
package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hyperengineering/deep/internal/access"
	"github.com/hyperengineering/deep/internal/store"
	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/validation"
	"github.com/hyperengineering/deep/internal/worker"
)

// Store is the persistence the project service depends on.
type Store interface {
	CreateProject(ctx context.Context, p *types.Project) error
	GetProject(ctx context.Context, id string) (*types.Project, error)
	SetProjectFramework(ctx context.Context, projectID string, frameworkID *string) error

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
	ListFilters(ctx context.Context, frameworkID string) ([]types.Filter, error)
	ListExportables(ctx context.Context, frameworkID string) ([]types.Exportable, error)

	CreateLead(ctx context.Context, l *types.Lead) error
	GetLead(ctx context.Context, id string) (*types.Lead, error)
	SetLeadExtractionStatus(ctx context.Context, id string, status types.JobStatus, errorCode string) error

	CreateEntry(ctx context.Context, e *types.Entry) error
	GetEntry(ctx context.Context, id string) (*types.Entry, error)
	ListFilterData(ctx context.Context, entryID string) ([]types.FilterData, error)
	ListExportData(ctx context.Context, entryID string) ([]types.ExportData, error)
}

// Pipeline writes attributes and widget declarations.
type Pipeline interface {
	SetAttribute(ctx context.Context, entryID, widgetID string, value json.RawMessage) (*types.Attribute, error)
	Declarations(w types.Widget) (store.WidgetDeclarations, error)
	SyncWidget(ctx context.Context, w types.Widget) error
}

// Enqueuer schedules background jobs by name.
type Enqueuer interface {
	Enqueue(name, id string) bool
}

// Service implements the project operations.
type Service struct {
	store    Store
	resolver *access.Resolver
	pipeline Pipeline
	jobs     Enqueuer
}

// NewService creates a Service. jobs may be nil, in which case background
// jobs are not scheduled.
func NewService(s Store, r *access.Resolver, p Pipeline, jobs Enqueuer) *Service {
	return &Service{store: s, resolver: r, pipeline: p, jobs: jobs}
}

func (s *Service) enqueue(name, id string) {
	if s.jobs == nil {
		return
	}
	s.jobs.Enqueue(name, id)
}

// CreateProject creates a project with actorID as its creator-role member.
// A framework given at creation must be usable by actorID.
func (s *Service) CreateProject(ctx context.Context, actorID string, p *types.Project) error {
	if err := validation.AsError(validation.ValidateProject(*p)); err != nil {
		return err
	}
	if p.FrameworkID != nil {
		f, err := s.store.GetFramework(ctx, *p.FrameworkID)
		if err != nil {
			return fmt.Errorf("get framework: %w", err)
		}
		if err := s.resolver.CheckUseFramework(ctx, actorID, f); err != nil {
			return err
		}
	}

	p.CreatedBy = actorID
	if err := s.store.CreateProject(ctx, p); err != nil {
		return fmt.Errorf("create project: %w", err)
	}

	slog.Info("project created",
		"component", "project",
		"action", "create_project",
		"project_id", p.ID,
		"user_id", actorID,
	)
	return nil
}

// GetProject returns a project visible to actorID. Invisible projects are
// reported as not found.
func (s *Service) GetProject(ctx context.Context, actorID, id string) (*types.Project, error) {
	p, err := s.store.GetProject(ctx, id)
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
	return p, nil
}

// AttachFramework sets the analysis framework of a project.
func (s *Service) AttachFramework(ctx context.Context, actorID, projectID, frameworkID string) (*types.Project, error) {
	p, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	f, err := s.store.GetFramework(ctx, frameworkID)
	if err != nil {
		return nil, fmt.Errorf("get framework: %w", err)
	}
	if err := s.resolver.CheckAttachFramework(ctx, actorID, p, f); err != nil {
		return nil, err
	}
	if err := s.store.SetProjectFramework(ctx, projectID, &frameworkID); err != nil {
		return nil, fmt.Errorf("set project framework: %w", err)
	}
	p.FrameworkID = &frameworkID

	slog.Info("framework attached",
		"component", "project",
		"action", "attach_framework",
		"project_id", projectID,
		"framework_id", frameworkID,
	)
	return p, nil
}

// CreateFramework creates a framework owned by actorID. A framework created
// from a project requires setup rights on that project.
func (s *Service) CreateFramework(ctx context.Context, actorID string, f *types.AnalysisFramework) error {
	if err := validation.AsError(validation.ValidateFramework(*f)); err != nil {
		return err
	}
	if f.ProjectID != nil {
		p, err := s.store.GetProject(ctx, *f.ProjectID)
		if err != nil {
			return fmt.Errorf("get project: %w", err)
		}
		ok, err := s.resolver.CanModifyProject(ctx, actorID, p)
		if err != nil {
			return err
		}
		if !ok {
			return &access.PermissionError{UserID: actorID, Action: "create framework in project " + p.ID}
		}
	}
	f.CreatedBy = actorID
	if err := s.store.CreateFramework(ctx, f); err != nil {
		return fmt.Errorf("create framework: %w", err)
	}
	return nil
}

// GetFramework returns a framework visible to actorID.
func (s *Service) GetFramework(ctx context.Context, actorID, id string) (*types.AnalysisFramework, error) {
	f, err := s.store.GetFramework(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get framework: %w", err)
	}
	ok, err := s.resolver.CanViewFramework(ctx, actorID, f)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("get framework: %w", store.ErrNotFound)
	}
	return f, nil
}

// DefaultFrameworkRole is granted when a framework member is added without a role.
const DefaultFrameworkRole = "af-default"

// AddFrameworkMember adds or updates the framework membership of userID.
// The framework creator and members whose role allows adding users may do so.
func (s *Service) AddFrameworkMember(ctx context.Context, actorID, frameworkID, userID, roleID string) (*types.FrameworkMembership, error) {
	f, err := s.GetFramework(ctx, actorID, frameworkID)
	if err != nil {
		return nil, err
	}
	if f.CreatedBy != actorID {
		role, err := s.store.FrameworkRole(ctx, f.ID, actorID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("framework role: %w", err)
		}
		if role == nil || !role.CanAddUser {
			return nil, &access.PermissionError{UserID: actorID, Action: "add members to framework " + f.ID}
		}
	}

	if roleID == "" {
		roleID = DefaultFrameworkRole
	}
	if _, err := s.store.GetFrameworkRole(ctx, roleID); err != nil {
		return nil, fmt.Errorf("get framework role: %w", err)
	}

	m := &types.FrameworkMembership{FrameworkID: f.ID, UserID: userID, RoleID: roleID, AddedBy: &actorID}
	if err := s.store.AddFrameworkMember(ctx, m); err != nil {
		return nil, fmt.Errorf("add framework member: %w", err)
	}
	return m, nil
}

// editableFramework loads a framework actorID may modify.
func (s *Service) editableFramework(ctx context.Context, actorID, id string) (*types.AnalysisFramework, error) {
	f, err := s.GetFramework(ctx, actorID, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.resolver.CanModifyFramework(ctx, actorID, f)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &access.PermissionError{UserID: actorID, Action: "modify framework " + id}
	}
	return f, nil
}

// SaveWidget creates or updates a widget and re-declares its filters and
// exportable. A widget's framework never changes after creation. Properties
// the widget type cannot derive declarations from are rejected before
// anything is written.
func (s *Service) SaveWidget(ctx context.Context, actorID string, w *types.Widget) error {
	if err := validation.AsError(validation.ValidateWidget(*w)); err != nil {
		return err
	}
	if w.ID != "" {
		existing, err := s.store.GetWidget(ctx, w.ID)
		if err != nil {
			return fmt.Errorf("get widget: %w", err)
		}
		w.FrameworkID = existing.FrameworkID
	}
	if _, err := s.editableFramework(ctx, actorID, w.FrameworkID); err != nil {
		return err
	}
	if _, err := s.pipeline.Declarations(*w); err != nil {
		return validation.Errors{{Field: "properties", Message: err.Error()}}
	}

	if err := s.store.SaveWidget(ctx, w); err != nil {
		return fmt.Errorf("save widget: %w", err)
	}
	if err := s.pipeline.SyncWidget(ctx, *w); err != nil {
		return fmt.Errorf("sync widget: %w", err)
	}

	slog.Info("widget saved",
		"component", "project",
		"action", "save_widget",
		"framework_id", w.FrameworkID,
		"widget_key", w.Key,
		"widget_type", w.WidgetType,
	)
	return nil
}

// DeleteWidget removes a widget with its filters, exportable and derived data.
func (s *Service) DeleteWidget(ctx context.Context, actorID, widgetID string) error {
	w, err := s.store.GetWidget(ctx, widgetID)
	if err != nil {
		return fmt.Errorf("get widget: %w", err)
	}
	if _, err := s.editableFramework(ctx, actorID, w.FrameworkID); err != nil {
		return err
	}
	if err := s.store.DeleteWidget(ctx, widgetID); err != nil {
		return fmt.Errorf("delete widget: %w", err)
	}
	return nil
}

// ListWidgets returns the widgets of a framework visible to actorID.
func (s *Service) ListWidgets(ctx context.Context, actorID, frameworkID string) ([]types.Widget, error) {
	if _, err := s.GetFramework(ctx, actorID, frameworkID); err != nil {
		return nil, err
	}
	return s.store.ListWidgets(ctx, frameworkID)
}

// ListFilters returns the declared filters of a framework.
func (s *Service) ListFilters(ctx context.Context, actorID, frameworkID string) ([]types.Filter, error) {
	if _, err := s.GetFramework(ctx, actorID, frameworkID); err != nil {
		return nil, err
	}
	return s.store.ListFilters(ctx, frameworkID)
}

// ListExportables returns the declared exportables of a framework.
func (s *Service) ListExportables(ctx context.Context, actorID, frameworkID string) ([]types.Exportable, error) {
	if _, err := s.GetFramework(ctx, actorID, frameworkID); err != nil {
		return nil, err
	}
	return s.store.ListExportables(ctx, frameworkID)
}

// RequestFrameworkSync marks the framework pending and schedules a full
// widget sync followed by an attribute backfill.
func (s *Service) RequestFrameworkSync(ctx context.Context, actorID, frameworkID string) error {
	if _, err := s.editableFramework(ctx, actorID, frameworkID); err != nil {
		return err
	}
	if err := s.store.SetFrameworkSyncStatus(ctx, frameworkID, types.JobPending); err != nil {
		return fmt.Errorf("set sync status: %w", err)
	}
	s.enqueue(worker.JobFrameworkSync, frameworkID)
	return nil
}

// requireProjectBit loads a project and checks one permission of actorID on it.
func (s *Service) requireProjectBit(ctx context.Context, actorID, projectID string, area access.Area, bit int, action string) (*types.Project, error) {
	p, err := s.GetProject(ctx, actorID, projectID)
	if err != nil {
		return nil, err
	}
	ok, err := s.resolver.Has(ctx, actorID, projectID, area, bit)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &access.PermissionError{UserID: actorID, Action: action + " in project " + projectID}
	}
	return p, nil
}

// CreateLead stores a lead and schedules its text extraction.
func (s *Service) CreateLead(ctx context.Context, actorID string, l *types.Lead) error {
	if err := validation.AsError(validation.ValidateLead(*l)); err != nil {
		return err
	}
	if _, err := s.requireProjectBit(ctx, actorID, l.ProjectID, access.AreaLead, types.PermCreate, "create leads"); err != nil {
		return err
	}
	l.CreatedBy = actorID
	if err := s.store.CreateLead(ctx, l); err != nil {
		return fmt.Errorf("create lead: %w", err)
	}
	s.enqueue(worker.JobLeadExtraction, l.ID)
	return nil
}

// GetLead returns a lead visible to actorID.
func (s *Service) GetLead(ctx context.Context, actorID, id string) (*types.Lead, error) {
	l, err := s.store.GetLead(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	if _, err := s.requireProjectBit(ctx, actorID, l.ProjectID, access.AreaLead, types.PermView, "view leads"); err != nil {
		return nil, err
	}
	return l, nil
}

// RequestLeadExtraction re-runs text extraction of a lead.
func (s *Service) RequestLeadExtraction(ctx context.Context, actorID, leadID string) error {
	l, err := s.store.GetLead(ctx, leadID)
	if err != nil {
		return fmt.Errorf("get lead: %w", err)
	}
	if _, err := s.requireProjectBit(ctx, actorID, l.ProjectID, access.AreaLead, types.PermModify, "modify leads"); err != nil {
		return err
	}
	if err := s.store.SetLeadExtractionStatus(ctx, leadID, types.JobPending, ""); err != nil {
		return fmt.Errorf("set extraction status: %w", err)
	}
	s.enqueue(worker.JobLeadExtraction, leadID)
	return nil
}

// CreateEntry creates an entry of a lead under the framework its project uses.
func (s *Service) CreateEntry(ctx context.Context, actorID string, e *types.Entry) error {
	if err := validation.AsError(validation.ValidateEntry(*e)); err != nil {
		return err
	}
	l, err := s.store.GetLead(ctx, e.LeadID)
	if err != nil {
		return fmt.Errorf("get lead: %w", err)
	}
	p, err := s.requireProjectBit(ctx, actorID, l.ProjectID, access.AreaEntry, types.PermCreate, "create entries")
	if err != nil {
		return err
	}
	if p.FrameworkID == nil {
		return fmt.Errorf("%w: project %s has no analysis framework", access.ErrBadRequest, p.ID)
	}

	e.ProjectID = p.ID
	e.FrameworkID = *p.FrameworkID
	e.CreatedBy = actorID
	if err := s.store.CreateEntry(ctx, e); err != nil {
		return fmt.Errorf("create entry: %w", err)
	}
	return nil
}

// viewableEntry loads an entry actorID may view together with its project.
func (s *Service) viewableEntry(ctx context.Context, actorID, id string) (*types.Entry, *types.Project, error) {
	e, err := s.store.GetEntry(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("get entry: %w", err)
	}
	p, err := s.GetProject(ctx, actorID, e.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	ok, err := s.resolver.CanViewEntry(ctx, actorID, p)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, &access.PermissionError{UserID: actorID, Action: "view entries in project " + p.ID}
	}
	return e, p, nil
}

// GetEntry returns an entry visible to actorID.
func (s *Service) GetEntry(ctx context.Context, actorID, id string) (*types.Entry, error) {
	e, _, err := s.viewableEntry(ctx, actorID, id)
	return e, err
}

// SetAttribute records an attribute value of an entry.
func (s *Service) SetAttribute(ctx context.Context, actorID, entryID, widgetID string, value json.RawMessage) (*types.Attribute, error) {
	_, p, err := s.viewableEntry(ctx, actorID, entryID)
	if err != nil {
		return nil, err
	}
	ok, err := s.resolver.CanModifyEntry(ctx, actorID, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &access.PermissionError{UserID: actorID, Action: "modify entries in project " + p.ID}
	}
	return s.pipeline.SetAttribute(ctx, entryID, widgetID, value)
}

// EntryFilterData returns the derived filter data of an entry.
func (s *Service) EntryFilterData(ctx context.Context, actorID, entryID string) ([]types.FilterData, error) {
	if _, _, err := s.viewableEntry(ctx, actorID, entryID); err != nil {
		return nil, err
	}
	return s.store.ListFilterData(ctx, entryID)
}

// EntryExportData returns the derived export data of an entry.
func (s *Service) EntryExportData(ctx context.Context, actorID, entryID string) ([]types.ExportData, error) {
	if _, _, err := s.viewableEntry(ctx, actorID, entryID); err != nil {
		return nil, err
	}
	return s.store.ListExportData(ctx, entryID)
}
