package store

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/hyperengineering/deep/internal/types"
)

func TestCreateFramework_CreatorIsOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")

	f := mustFramework(t, s, u.ID)

	got, err := s.GetFramework(ctx, f.ID)
	if err != nil {
		t.Fatalf("GetFramework() error = %v", err)
	}
	if got.Title != "Framework" || got.SyncStatus != types.JobSuccess {
		t.Errorf("GetFramework() = %+v", got)
	}

	role, err := s.FrameworkRole(ctx, f.ID, u.ID)
	if err != nil {
		t.Fatalf("FrameworkRole() error = %v", err)
	}
	if !role.CanEditFramework || !role.CanUseInOtherProjects || !role.CanAddUser {
		t.Errorf("creator role = %+v, want owner bits", role)
	}
}

func TestFrameworkRole_NotMember(t *testing.T) {
	s := newTestStore(t)
	u := mustUser(t, s, "alice")
	other := mustUser(t, s, "bob")
	f := mustFramework(t, s, u.ID)

	_, err := s.FrameworkRole(context.Background(), f.ID, other.ID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("FrameworkRole() error = %v, want ErrNotFound", err)
	}
}

func TestAddFrameworkMember_UpdatesRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	bob := mustUser(t, s, "bob")
	f := mustFramework(t, s, u.ID)

	if err := s.AddFrameworkMember(ctx, &types.FrameworkMembership{FrameworkID: f.ID, UserID: bob.ID, RoleID: "af-viewer"}); err != nil {
		t.Fatalf("AddFrameworkMember() error = %v", err)
	}
	if err := s.AddFrameworkMember(ctx, &types.FrameworkMembership{FrameworkID: f.ID, UserID: bob.ID, RoleID: "af-default"}); err != nil {
		t.Fatalf("AddFrameworkMember() second call error = %v", err)
	}

	role, err := s.FrameworkRole(ctx, f.ID, bob.ID)
	if err != nil {
		t.Fatalf("FrameworkRole() error = %v", err)
	}
	if role.ID != "af-default" {
		t.Errorf("role = %s, want af-default", role.ID)
	}
}

func TestSetFrameworkSyncStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	f := mustFramework(t, s, u.ID)

	if err := s.SetFrameworkSyncStatus(ctx, f.ID, types.JobFailed); err != nil {
		t.Fatalf("SetFrameworkSyncStatus() error = %v", err)
	}
	got, _ := s.GetFramework(ctx, f.ID)
	if got.SyncStatus != types.JobFailed {
		t.Errorf("SyncStatus = %s, want failed", got.SyncStatus)
	}

	if err := s.SetFrameworkSyncStatus(ctx, "missing", types.JobFailed); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetFrameworkSyncStatus(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSaveWidget_DuplicateKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	f := mustFramework(t, s, u.ID)

	if err := s.SaveWidget(ctx, &types.Widget{FrameworkID: f.ID, WidgetType: "dateWidget", Key: "date", Title: "Date"}); err != nil {
		t.Fatalf("SaveWidget() error = %v", err)
	}
	err := s.SaveWidget(ctx, &types.Widget{FrameworkID: f.ID, WidgetType: "timeWidget", Key: "date", Title: "Time"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("SaveWidget(duplicate key) error = %v, want ErrDuplicate", err)
	}
}

func TestSaveWidget_UpdateKeepsFramework(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	f := mustFramework(t, s, u.ID)

	w := &types.Widget{FrameworkID: f.ID, WidgetType: "dateWidget", Key: "date", Title: "Date"}
	if err := s.SaveWidget(ctx, w); err != nil {
		t.Fatalf("SaveWidget() error = %v", err)
	}

	update := &types.Widget{ID: w.ID, FrameworkID: "ignored", WidgetType: "dateWidget", Key: "date", Title: "Published"}
	if err := s.SaveWidget(ctx, update); err != nil {
		t.Fatalf("SaveWidget(update) error = %v", err)
	}

	got, err := s.GetWidget(ctx, w.ID)
	if err != nil {
		t.Fatalf("GetWidget() error = %v", err)
	}
	if got.Title != "Published" || got.FrameworkID != f.ID {
		t.Errorf("GetWidget() = %+v", got)
	}
}

func declare(frameworkID, widgetKey string, keys ...string) WidgetDeclarations {
	d := WidgetDeclarations{FrameworkID: frameworkID, WidgetKey: widgetKey}
	for _, k := range keys {
		d.Filters = append(d.Filters, types.Filter{Key: k, Title: k, FilterType: types.FilterList})
	}
	return d
}

func TestSyncWidgetDeclarations_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	f := mustFramework(t, s, u.ID)

	d := declare(f.ID, "matrix", "matrix-dimensions", "matrix-sectors")
	d.Exportable = &types.Exportable{Data: json.RawMessage(`{"excel":{"type":"multiple"}}`)}

	if err := s.SyncWidgetDeclarations(ctx, d); err != nil {
		t.Fatalf("first sync error = %v", err)
	}
	first, _ := s.ListFilters(ctx, f.ID)
	firstExp, _ := s.ListExportables(ctx, f.ID)

	if err := s.SyncWidgetDeclarations(ctx, d); err != nil {
		t.Fatalf("second sync error = %v", err)
	}
	second, _ := s.ListFilters(ctx, f.ID)
	secondExp, _ := s.ListExportables(ctx, f.ID)

	if len(second) != 2 {
		t.Fatalf("filters = %d, want 2", len(second))
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("filters drifted:\nfirst  %+v\nsecond %+v", first, second)
	}
	if !reflect.DeepEqual(firstExp, secondExp) {
		t.Errorf("exportables drifted:\nfirst  %+v\nsecond %+v", firstExp, secondExp)
	}
}

func TestSyncWidgetDeclarations_DeletesUndeclared(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	f := mustFramework(t, s, u.ID)

	d := declare(f.ID, "matrix", "a", "b")
	d.Exportable = &types.Exportable{Data: json.RawMessage(`{}`)}
	if err := s.SyncWidgetDeclarations(ctx, d); err != nil {
		t.Fatal(err)
	}
	if err := s.SyncWidgetDeclarations(ctx, declare(f.ID, "other", "x")); err != nil {
		t.Fatal(err)
	}

	// Widget now declares only "b" and no exportable.
	if err := s.SyncWidgetDeclarations(ctx, declare(f.ID, "matrix", "b")); err != nil {
		t.Fatal(err)
	}

	filters, _ := s.ListFilters(ctx, f.ID)
	var keys []string
	for _, fl := range filters {
		keys = append(keys, fl.WidgetKey+"/"+fl.Key)
	}
	if want := []string{"matrix/b", "other/x"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("filters = %v, want %v", keys, want)
	}

	exps, _ := s.ListExportables(ctx, f.ID)
	if len(exps) != 0 {
		t.Errorf("exportables = %+v, want none", exps)
	}

	// Declaring nothing removes every filter of the widget.
	if err := s.SyncWidgetDeclarations(ctx, declare(f.ID, "matrix")); err != nil {
		t.Fatal(err)
	}
	filters, _ = s.ListFilters(ctx, f.ID)
	if len(filters) != 1 || filters[0].WidgetKey != "other" {
		t.Errorf("filters = %+v, want only other/x", filters)
	}
}

func TestSyncWidgetDeclarations_UpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	f := mustFramework(t, s, u.ID)

	if err := s.SyncWidgetDeclarations(ctx, declare(f.ID, "date", "date")); err != nil {
		t.Fatal(err)
	}
	before, _ := s.ListFilters(ctx, f.ID)

	d := declare(f.ID, "date", "date")
	d.Filters[0].Title = "Renamed"
	d.Filters[0].FilterType = types.FilterNumber
	if err := s.SyncWidgetDeclarations(ctx, d); err != nil {
		t.Fatal(err)
	}
	after, _ := s.ListFilters(ctx, f.ID)

	if len(after) != 1 {
		t.Fatalf("filters = %d, want 1", len(after))
	}
	if after[0].ID != before[0].ID {
		t.Errorf("filter id changed from %s to %s", before[0].ID, after[0].ID)
	}
	if after[0].Title != "Renamed" || after[0].FilterType != types.FilterNumber {
		t.Errorf("filter = %+v", after[0])
	}
}

func TestSaveWidget_RenameDropsOldDeclarations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	f := mustFramework(t, s, u.ID)

	w := &types.Widget{FrameworkID: f.ID, WidgetType: "dateWidget", Key: "date", Title: "Date"}
	if err := s.SaveWidget(ctx, w); err != nil {
		t.Fatal(err)
	}
	if err := s.SyncWidgetDeclarations(ctx, declare(f.ID, "date", "date")); err != nil {
		t.Fatal(err)
	}

	w.Key = "published"
	if err := s.SaveWidget(ctx, w); err != nil {
		t.Fatal(err)
	}

	filters, _ := s.ListFilters(ctx, f.ID)
	if len(filters) != 0 {
		t.Errorf("filters = %+v, want none after rename", filters)
	}
}

func TestDeleteWidget(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	f := mustFramework(t, s, u.ID)

	w := &types.Widget{FrameworkID: f.ID, WidgetType: "dateWidget", Key: "date", Title: "Date"}
	if err := s.SaveWidget(ctx, w); err != nil {
		t.Fatal(err)
	}
	d := declare(f.ID, "date", "date")
	d.Exportable = &types.Exportable{Data: json.RawMessage(`{}`)}
	if err := s.SyncWidgetDeclarations(ctx, d); err != nil {
		t.Fatal(err)
	}

	if err := s.DeleteWidget(ctx, w.ID); err != nil {
		t.Fatalf("DeleteWidget() error = %v", err)
	}

	if _, err := s.GetWidget(ctx, w.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetWidget() after delete error = %v, want ErrNotFound", err)
	}
	filters, _ := s.ListFilters(ctx, f.ID)
	exps, _ := s.ListExportables(ctx, f.ID)
	if len(filters) != 0 || len(exps) != 0 {
		t.Errorf("declarations remain: filters=%d exportables=%d", len(filters), len(exps))
	}

	if err := s.DeleteWidget(ctx, w.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("DeleteWidget(missing) error = %v, want ErrNotFound", err)
	}
}

func TestListWidgets_AllFrameworks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := mustUser(t, s, "alice")
	f1 := mustFramework(t, s, u.ID)
	f2 := mustFramework(t, s, u.ID)

	for _, w := range []*types.Widget{
		{FrameworkID: f1.ID, WidgetType: "dateWidget", Key: "date", Title: "Date"},
		{FrameworkID: f2.ID, WidgetType: "timeWidget", Key: "time", Title: "Time"},
	} {
		if err := s.SaveWidget(ctx, w); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListWidgets(ctx, "")
	if err != nil {
		t.Fatalf("ListWidgets(all) error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListWidgets(all) = %d, want 2", len(all))
	}

	scoped, err := s.ListWidgets(ctx, f2.ID)
	if err != nil {
		t.Fatalf("ListWidgets(f2) error = %v", err)
	}
	if len(scoped) != 1 || scoped[0].Key != "time" {
		t.Errorf("ListWidgets(f2) = %+v", scoped)
	}
}
