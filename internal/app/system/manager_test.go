package system

import (
	"context"
	"errors"
	"testing"
)

type recordingService struct {
	name     string
	log      *[]string
	startErr error
}

func (r recordingService) Name() string { return r.name }

func (r recordingService) Start(context.Context) error {
	if r.startErr != nil {
		return r.startErr
	}
	*r.log = append(*r.log, "start:"+r.name)
	return nil
}

func (r recordingService) Stop(context.Context) error {
	*r.log = append(*r.log, "stop:"+r.name)
	return nil
}

func TestManagerStartsInOrderAndStopsInReverse(t *testing.T) {
	var log []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(recordingService{name: name, log: &log}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	ctx := context.Background()
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(log) != len(want) {
		t.Fatalf("unexpected log %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("step %d: got %s want %s", i, log[i], want[i])
		}
	}
}

func TestManagerRollsBackOnStartFailure(t *testing.T) {
	var log []string
	m := NewManager()
	_ = m.Register(recordingService{name: "a", log: &log})
	_ = m.Register(recordingService{name: "b", log: &log, startErr: errors.New("boom")})

	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	if len(log) != 2 || log[0] != "start:a" || log[1] != "stop:a" {
		t.Fatalf("unexpected log %v", log)
	}
}

func TestManagerRejectsDuplicatesAndLateRegistration(t *testing.T) {
	m := NewManager()
	var log []string
	if err := m.Register(recordingService{name: "x", log: &log}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(recordingService{name: "x", log: &log}); err == nil {
		t.Fatalf("expected duplicate error")
	}
	if err := m.Register(nil); err == nil {
		t.Fatalf("expected nil service error")
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Register(recordingService{name: "y", log: &log}); err == nil {
		t.Fatalf("expected late registration error")
	}
	if names := m.Services(); len(names) != 1 || names[0] != "x" {
		t.Fatalf("unexpected services %v", names)
	}
}
