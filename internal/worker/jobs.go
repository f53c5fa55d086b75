package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/k3a/html2text"

	"github.com/hyperengineering/deep/internal/types"
)

// Job names.
const (
	JobLeadExtraction = "lead_extraction"
	JobFrameworkSync  = "framework_sync"
)

// ErrNoContent is returned when a lead has nothing to extract text from.
var ErrNoContent = errors.New("lead has no content")

// LeadStore is the persistence the extraction job depends on.
type LeadStore interface {
	GetLead(ctx context.Context, id string) (*types.Lead, error)
	SetLeadText(ctx context.Context, id, text string) error
	SetLeadExtractionStatus(ctx context.Context, id string, status types.JobStatus, errorCode string) error
}

// LeadExtraction converts the submitted body of a lead into plain text.
type LeadExtraction struct {
	store LeadStore
}

// NewLeadExtraction creates the lead extraction job.
func NewLeadExtraction(s LeadStore) *LeadExtraction {
	return &LeadExtraction{store: s}
}

func (j *LeadExtraction) Name() string { return JobLeadExtraction }

func (j *LeadExtraction) LockKey(id string) string { return JobLeadExtraction + ":" + id }

func (j *LeadExtraction) Run(ctx context.Context, id string) error {
	l, err := j.store.GetLead(ctx, id)
	if err != nil {
		return fmt.Errorf("get lead: %w", err)
	}
	text := strings.TrimSpace(html2text.HTML2Text(l.Body))
	if text == "" {
		return fmt.Errorf("lead %s: %w", id, ErrNoContent)
	}
	if err := j.store.SetLeadText(ctx, id, text); err != nil {
		return fmt.Errorf("set lead text: %w", err)
	}
	return nil
}

func (j *LeadExtraction) SetStatus(ctx context.Context, id string, status types.JobStatus, errorCode string) error {
	return j.store.SetLeadExtractionStatus(ctx, id, status, errorCode)
}

// Syncer re-declares widgets and re-derives attribute data of a framework.
type Syncer interface {
	SyncAllWidgets(ctx context.Context, frameworkID string) (types.SyncSummary, error)
	ReapplyAttributes(ctx context.Context, frameworkID string) (types.SyncSummary, error)
}

// FrameworkStatusStore records the outcome of a framework sync.
type FrameworkStatusStore interface {
	SetFrameworkSyncStatus(ctx context.Context, id string, status types.JobStatus) error
}

// FrameworkSync syncs every widget of a framework and then backfills the
// derived data of its attributes.
type FrameworkSync struct {
	syncer Syncer
	store  FrameworkStatusStore
}

// NewFrameworkSync creates the framework sync job.
func NewFrameworkSync(syncer Syncer, s FrameworkStatusStore) *FrameworkSync {
	return &FrameworkSync{syncer: syncer, store: s}
}

func (j *FrameworkSync) Name() string { return JobFrameworkSync }

func (j *FrameworkSync) LockKey(id string) string { return JobFrameworkSync + ":" + id }

func (j *FrameworkSync) Run(ctx context.Context, id string) error {
	widgets, err := j.syncer.SyncAllWidgets(ctx, id)
	if err != nil {
		return fmt.Errorf("sync widgets: %w", err)
	}
	attrs, err := j.syncer.ReapplyAttributes(ctx, id)
	if err != nil {
		return fmt.Errorf("reapply attributes: %w", err)
	}
	if failed := widgets.Failed + attrs.Failed; failed > 0 {
		return fmt.Errorf("framework %s: %d widget and %d attribute failures", id, widgets.Failed, attrs.Failed)
	}
	return nil
}

func (j *FrameworkSync) SetStatus(ctx context.Context, id string, status types.JobStatus, _ string) error {
	return j.store.SetFrameworkSyncStatus(ctx, id, status)
}
