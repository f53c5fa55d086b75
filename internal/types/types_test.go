package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestEntryType_Valid(t *testing.T) {
	tests := []struct {
		in   EntryType
		want bool
	}{
		{EntryExcerpt, true},
		{EntryImage, true},
		{EntryDataSeries, true},
		{"", false},
		{"EXCERPT", false},
	}
	for _, tt := range tests {
		if got := tt.in.Valid(); got != tt.want {
			t.Errorf("EntryType(%q).Valid() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCan(t *testing.T) {
	mask := PermView | PermModify
	if !Can(mask, PermView) {
		t.Error("Can(view|modify, view) = false, want true")
	}
	if !Can(mask, PermModify) {
		t.Error("Can(view|modify, modify) = false, want true")
	}
	if Can(mask, PermDelete) {
		t.Error("Can(view|modify, delete) = true, want false")
	}
	if Can(mask, PermView|PermDelete) {
		t.Error("Can(view|modify, view|delete) = true, want false")
	}
}

func TestWidget_JSONUsesWidgetIDTag(t *testing.T) {
	w := Widget{ID: "w1", FrameworkID: "af1", WidgetType: "dateWidget", Key: "date", Title: "Date"}

	data, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	s := string(data)
	for _, key := range []string{`"widget_id":"dateWidget"`, `"analysis_framework_id":"af1"`, `"key":"date"`} {
		if !strings.Contains(s, key) {
			t.Errorf("JSON missing %s: %s", key, s)
		}
	}
}

func TestLead_BodyNotSerialized(t *testing.T) {
	l := Lead{ID: "l1", Body: "<p>secret source</p>", Text: "secret source"}

	data, err := json.Marshal(l)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(data), "<p>") {
		t.Errorf("raw body leaked into JSON: %s", data)
	}
}
