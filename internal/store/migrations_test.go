//go:build integration

package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestRunMigrations_FreshDatabase(t *testing.T) {
	// Given: A fresh database with no tables
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// When: RunMigrations is called
	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	// Then: Every table of the schema exists
	for _, table := range []string{
		"users", "project_roles", "framework_roles", "user_groups", "group_memberships",
		"analysis_frameworks", "framework_memberships", "projects", "project_memberships",
		"project_user_groups", "project_join_requests", "widgets", "filters", "exportables",
		"leads", "entries", "attributes", "filter_data", "export_data", "locks",
	} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}
}

func TestRunMigrations_SeedsRoles(t *testing.T) {
	// Given: A migrated database
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := RunMigrations(db); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	// Then: Exactly one creator and one default project role exist
	var creators, defaults int
	if err := db.QueryRow(`SELECT COUNT(*) FROM project_roles WHERE is_creator_role = 1`).Scan(&creators); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM project_roles WHERE is_default_role = 1`).Scan(&defaults); err != nil {
		t.Fatal(err)
	}
	if creators != 1 || defaults != 1 {
		t.Errorf("creator roles = %d, default roles = %d, want 1 and 1", creators, defaults)
	}

	// And: The creator role carries the highest level
	var top int
	if err := db.QueryRow(`SELECT MAX(level) FROM project_roles`).Scan(&top); err != nil {
		t.Fatal(err)
	}
	var creatorLevel int
	if err := db.QueryRow(`SELECT level FROM project_roles WHERE is_creator_role = 1`).Scan(&creatorLevel); err != nil {
		t.Fatal(err)
	}
	if creatorLevel != top {
		t.Errorf("creator level = %d, want top level %d", creatorLevel, top)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	// Given: A database that has already been migrated
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := RunMigrations(db); err != nil {
		t.Fatalf("first migration failed: %v", err)
	}

	// When: RunMigrations is called again
	err = RunMigrations(db)

	// Then: No error occurs and seeds are not duplicated
	if err != nil {
		t.Fatalf("second migration should be idempotent, got error: %v", err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM project_roles`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("project roles = %d, want 4", n)
	}
}
