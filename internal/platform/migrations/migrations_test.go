package migrations

import (
	"database/sql"
	"errors"
	"io"
	"io/fs"
	"os"
	"strings"
	"testing"

	_ "github.com/lib/pq"
)

func TestSourceHasPairedMigrations(t *testing.T) {
	src, err := Source()
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	count := 0
	for {
		count++
		up, _, err := src.ReadUp(v)
		if err != nil {
			t.Fatalf("read up %d: %v", v, err)
		}
		body, _ := io.ReadAll(up)
		up.Close()
		if len(strings.TrimSpace(string(body))) == 0 {
			t.Fatalf("migration %d up is empty", v)
		}
		down, _, err := src.ReadDown(v)
		if err != nil {
			t.Fatalf("read down %d: %v", v, err)
		}
		down.Close()

		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			t.Fatalf("next after %d: %v", v, err)
		}
		v = next
	}
	if count == 0 {
		t.Fatalf("expected at least one migration")
	}
}

func TestSchemaDefinesFriendPairIndex(t *testing.T) {
	body, err := files.ReadFile("sql/0001_init.up.sql")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	schema := string(body)
	for _, want := range []string{"members", "group_memberships", "friend_connections", "LEAST(user1_id, user2_id)"} {
		if !strings.Contains(schema, want) {
			t.Fatalf("schema missing %q", want)
		}
	}
}

func TestApplyIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres migration test")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := Apply(db); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := Apply(db); err != nil {
		t.Fatalf("second apply should be a no-op: %v", err)
	}
	v, dirty, err := Version(db)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != 1 || dirty {
		t.Fatalf("unexpected version %d dirty=%v", v, dirty)
	}
}
