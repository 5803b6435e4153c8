package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestWithContextCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("groupfit", "debug", "json", &buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithMemberID(ctx, 42)
	ctx = WithRole(ctx, "member")

	log.WithContext(ctx).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["trace_id"] != "trace-1" {
		t.Fatalf("trace_id = %v", entry["trace_id"])
	}
	if entry["member_id"] != float64(42) {
		t.Fatalf("member_id = %v", entry["member_id"])
	}
	if entry["service"] != "groupfit" || entry["role"] != "member" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestLogRequestLevelByStatus(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOutput("groupfit", "info", "json", &buf)

	log.LogRequest(context.Background(), http.MethodGet, "/api/groups", http.StatusForbidden, 5*time.Millisecond)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if entry["level"] != "warning" {
		t.Fatalf("level = %v, want warning", entry["level"])
	}
	if entry["status"] != float64(http.StatusForbidden) {
		t.Fatalf("status = %v", entry["status"])
	}
}

func TestContextHelpersEmpty(t *testing.T) {
	ctx := context.Background()
	if GetTraceID(ctx) != "" || GetRole(ctx) != "" {
		t.Fatal("expected empty values")
	}
	if _, ok := GetMemberID(ctx); ok {
		t.Fatal("expected no member id")
	}
	if WithTraceID(ctx, "") != ctx {
		t.Fatal("empty trace id should not wrap context")
	}
	if NewTraceID() == NewTraceID() {
		t.Fatal("trace ids should differ")
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	log := New("groupfit", "loud", "text")
	if log.GetLevel().String() != "info" {
		t.Fatalf("level = %s", log.GetLevel())
	}
}
