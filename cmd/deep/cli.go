package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hyperengineering/deep/internal/config"
	"github.com/hyperengineering/deep/internal/store"
)

// dbPathOverride is shared by every offline subcommand.
var dbPathOverride string

// openStore opens the SQLite store from --db, falling back to configuration.
func openStore() (*store.SQLiteStore, error) {
	path := dbPathOverride
	if path == "" {
		cfg, err := config.LoadUnvalidated()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		path = cfg.Database.Path
	}
	return store.NewSQLiteStore(path)
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
