package httpapi

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/bcrypt"

	app "github.com/groupfit/server/internal/app"
	"github.com/groupfit/server/internal/app/auth"
	"github.com/groupfit/server/internal/app/media"
	"github.com/groupfit/server/internal/app/storage/postgres"
	"github.com/groupfit/server/internal/logging"
	"github.com/groupfit/server/internal/platform/migrations"
)

// Runs the core flows against Postgres to check migrations and the store.
func TestIntegrationPostgres(t *testing.T) {
	_ = godotenv.Load() // allow .env for local runs
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping Postgres integration")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := migrations.Apply(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := postgres.New(db)
	tokens, err := auth.NewTokens("integration-secret", "groupfit", time.Hour)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	files, err := media.NewDisk(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("media: %v", err)
	}
	application, err := app.New(app.Stores{Members: store, Groups: store, Friends: store, Health: store}, app.Options{
		Hasher: auth.Hasher{Cost: bcrypt.MinCost},
		Tokens: tokens,
		Media:  files,
	}, logging.Discard())
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	s := &testServer{t: t, app: application, handler: NewHandler(application, Options{Logger: logging.Discard()})}
	if err := application.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer application.Stop(context.Background())

	expectStatus(t, s.do(http.MethodGet, "/readyz", nil, ""), http.StatusOK)

	suffix := time.Now().UnixNano()
	_, alice := s.register(fmt.Sprintf("alice%d@example.com", suffix))
	bobID, bob := s.register(fmt.Sprintf("bob%d@example.com", suffix))
	groupID := s.createGroup(alice, "Postgres Runners")

	mine := s.do(http.MethodGet, "/api/groups", nil, alice)
	expectStatus(t, mine, http.StatusOK)
	aliceMembership := gjson.GetBytes(mine.Body.Bytes(), "0.id").Int()
	expectStatus(t, s.do(http.MethodDelete, fmt.Sprintf("/api/groups/memberships/%d", aliceMembership), nil, alice), http.StatusForbidden)

	expectStatus(t, s.do(http.MethodPost, "/api/groups/addMember", map[string]any{"member": bobID, "group": groupID}, alice), http.StatusCreated)
	expectStatus(t, s.do(http.MethodPost, "/api/groups/addMember", map[string]any{"member": bobID, "group": groupID}, alice), http.StatusConflict)

	aliceID := gjson.GetBytes(s.do(http.MethodGet, "/api/member/me", nil, alice).Body.Bytes(), "id").Int()
	expectStatus(t, s.do(http.MethodPost, "/api/friends/addFriend", map[string]any{"user2_id": bobID}, alice), http.StatusCreated)
	expectStatus(t, s.do(http.MethodPost, "/api/friends/addFriend", map[string]any{"user2_id": aliceID}, bob), http.StatusConflict)

	expectStatus(t, s.do(http.MethodDelete, fmt.Sprintf("/api/groups/%d", groupID), nil, alice), http.StatusNoContent)
}
