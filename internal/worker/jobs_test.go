package worker

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperengineering/deep/internal/lock"
	"github.com/hyperengineering/deep/internal/pipeline"
	"github.com/hyperengineering/deep/internal/store"
	"github.com/hyperengineering/deep/internal/types"
	"github.com/hyperengineering/deep/internal/widget/builtin"
)

type jobFixture struct {
	ctx     context.Context
	store   *store.SQLiteStore
	runner  *Runner
	user    *types.User
	project *types.Project
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "deep.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	u := &types.User{Username: "alice"}
	require.NoError(t, s.CreateUser(ctx, u))
	p := &types.Project{Title: "Project", CreatedBy: u.ID}
	require.NoError(t, s.CreateProject(ctx, p))

	return &jobFixture{
		ctx:     ctx,
		store:   s,
		runner:  NewRunner(lock.NewSQL(s), time.Minute, nil),
		user:    u,
		project: p,
	}
}

func TestLeadExtraction(t *testing.T) {
	fx := newJobFixture(t)
	l := &types.Lead{
		ProjectID: fx.project.ID,
		Title:     "Situation report",
		Body:      "<html><body><p>Flooding in <b>Sindh</b> displaced families.</p></body></html>",
		CreatedBy: fx.user.ID,
	}
	require.NoError(t, fx.store.CreateLead(fx.ctx, l))

	require.True(t, fx.runner.Run(fx.ctx, NewLeadExtraction(fx.store), l.ID))

	got, err := fx.store.GetLead(fx.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobSuccess, got.ExtractionStatus)
	assert.Empty(t, got.ExtractionError)
	assert.Contains(t, got.Text, "Flooding in Sindh displaced families.")
	assert.NotContains(t, got.Text, "<b>")
}

func TestLeadExtraction_EmptyBodyFails(t *testing.T) {
	fx := newJobFixture(t)
	l := &types.Lead{ProjectID: fx.project.ID, Title: "Empty", CreatedBy: fx.user.ID}
	require.NoError(t, fx.store.CreateLead(fx.ctx, l))

	require.True(t, fx.runner.Run(fx.ctx, NewLeadExtraction(fx.store), l.ID))

	got, err := fx.store.GetLead(fx.ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, got.ExtractionStatus)
	assert.Equal(t, types.ErrorCodeUnknown, got.ExtractionError)
}

func TestLeadExtraction_LockKey(t *testing.T) {
	j := NewLeadExtraction(nil)
	assert.Equal(t, "lead_extraction", j.Name())
	assert.Equal(t, "lead_extraction:l1", j.LockKey("l1"))
}

func TestFrameworkSync(t *testing.T) {
	fx := newJobFixture(t)
	f := &types.AnalysisFramework{Title: "Framework", CreatedBy: fx.user.ID}
	require.NoError(t, fx.store.CreateFramework(fx.ctx, f))
	w := &types.Widget{
		FrameworkID: f.ID,
		WidgetType:  "selectWidget",
		Key:         "severity",
		Title:       "Severity",
		Properties:  json.RawMessage(`{"data":{"options":[{"key":"high","label":"High"}]}}`),
	}
	require.NoError(t, fx.store.SaveWidget(fx.ctx, w))

	p := pipeline.New(fx.store, builtin.Registry(), nil)
	require.True(t, fx.runner.Run(fx.ctx, NewFrameworkSync(p, fx.store), f.ID))

	filters, err := fx.store.ListFilters(fx.ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, filters, 1)
	assert.Equal(t, "severity", filters[0].Key)

	got, err := fx.store.GetFramework(fx.ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobSuccess, got.SyncStatus)
}

// failingSyncer reports per-widget failures without returning an error.
type failingSyncer struct{}

func (failingSyncer) SyncAllWidgets(context.Context, string) (types.SyncSummary, error) {
	return types.SyncSummary{Synced: 1, Failed: 1}, nil
}

func (failingSyncer) ReapplyAttributes(context.Context, string) (types.SyncSummary, error) {
	return types.SyncSummary{}, nil
}

func TestFrameworkSync_PartialFailureMarksFailed(t *testing.T) {
	fx := newJobFixture(t)
	f := &types.AnalysisFramework{Title: "Framework", CreatedBy: fx.user.ID}
	require.NoError(t, fx.store.CreateFramework(fx.ctx, f))

	require.True(t, fx.runner.Run(fx.ctx, NewFrameworkSync(failingSyncer{}, fx.store), f.ID))

	got, err := fx.store.GetFramework(fx.ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, got.SyncStatus)
}
