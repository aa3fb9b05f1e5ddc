package db_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atinyakov/GalleryKeeper/internal/db"
)

func TestInitPostgres_ErrorPaths(t *testing.T) {
	cases := []struct {
		name       string
		dsn        string
		wantSubstr string
	}{
		{"invalid DSN", "some=random", "ping postgres"},
		{"empty DSN", "", "ping postgres"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := db.InitPostgres(tc.dsn)
			if err == nil {
				t.Fatalf("InitPostgres(%q) did not return error", tc.dsn)
			}
			if !strings.Contains(err.Error(), tc.wantSubstr) {
				t.Errorf("InitPostgres(%q) error = %q; want substring %q", tc.dsn, err.Error(), tc.wantSubstr)
			}
		})
	}
}

func TestInitSQLite(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")

	conn, err := db.InitSQLite(dir)
	if err != nil {
		t.Fatalf("InitSQLite: %v", err)
	}
	defer conn.Close()

	if _, err := os.Stat(filepath.Join(dir, db.SQLiteFile)); err != nil {
		t.Fatalf("database file not created: %v", err)
	}

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		t.Fatalf("records table missing: %v", err)
	}
	if n != 0 {
		t.Errorf("records = %d; want 0", n)
	}

	// Opening again must not fail on the existing schema.
	again, err := db.InitSQLite(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	again.Close()
}

func TestInitSQLite_EmptyDir(t *testing.T) {
	if _, err := db.InitSQLite(" "); err == nil {
		t.Fatal("InitSQLite with empty dir did not return error")
	}
}
