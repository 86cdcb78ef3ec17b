package session_test

import (
	"errors"
	"testing"
	"time"

	"github.com/torosent/batchpace/internal/session"
)

func TestRegistryAddGetStop(t *testing.T) {
	reg := session.NewRegistry(time.Minute, nil)
	s := newSession(t, 10)
	if err := reg.Add(s); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := reg.Add(s); !errors.Is(err, session.ErrDuplicateID) {
		t.Fatalf("duplicate Add err = %v", err)
	}

	_ = s.Start(epoch)
	if !reg.Stop("t-1") {
		t.Fatal("first Stop should return true")
	}
	if reg.Stop("t-1") {
		t.Fatal("second Stop should return false")
	}
	if reg.Stop("missing") {
		t.Fatal("Stop on unknown id should return false")
	}

	snap, ok := reg.Snapshot("t-1")
	if !ok || snap.TestID != "t-1" {
		t.Fatalf("Snapshot = %+v, %v", snap, ok)
	}
}

func TestRegistryActiveAndRetention(t *testing.T) {
	now := epoch
	reg := session.NewRegistry(5*time.Minute, func() time.Time { return now })

	running, _ := session.New("run", "x", "", 10, now)
	done, _ := session.New("done", "x", "", 10, now)
	_ = reg.Add(running)
	_ = reg.Add(done)
	_ = running.Start(now)
	_ = done.Start(now)
	_ = done.Finish(session.StatusStopped, 0, now)

	active := reg.Active()
	if len(active) != 1 {
		t.Fatalf("Active len = %d, want 1", len(active))
	}
	if _, ok := active["run"]; !ok {
		t.Fatal("running session missing from Active")
	}
	if len(reg.All()) != 2 {
		t.Fatalf("All len = %d, want 2", len(reg.All()))
	}

	now = now.Add(6 * time.Minute)
	if _, ok := reg.Get("done"); ok {
		t.Fatal("finished session should be purged after retention")
	}
	if _, ok := reg.Get("run"); !ok {
		t.Fatal("running session must not be purged")
	}
}
