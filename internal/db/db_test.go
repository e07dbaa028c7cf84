package db_test

import (
	"path/filepath"
	"testing"

	"github.com/eargollo/archiver/internal/db"
)

func TestOpenAndMigrate(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	// Applying twice is a no-op.
	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations (second run): %v", err)
	}

	for _, table := range []string{"profiles", "files"} {
		var name string
		err := database.QueryRow(
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing: %v", table, err)
		}
	}
}

func TestForeignKeysEnforced(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer database.Close()
	if err := db.RunMigrations(database); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}

	var on int
	if err := database.QueryRow(`PRAGMA foreign_keys`).Scan(&on); err != nil {
		t.Fatalf("read pragma: %v", err)
	}
	if on != 1 {
		t.Fatalf("foreign_keys = %d, want 1", on)
	}

	_, err = database.Exec(
		`INSERT INTO files (file_name, sha256, profile_id) VALUES ('a.txt', 'abc', 999)`)
	if err == nil {
		t.Fatal("expected foreign key violation inserting file for unknown profile")
	}
}
