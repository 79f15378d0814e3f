package syncengine

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMonitoring_FSNotifyTriggersQuickSync(t *testing.T) {
	e := newEnv(t, false)
	n := NewFSNotifier(e.store.Root(), 50*time.Millisecond, testLogger())

	e.engine.StartMonitoring(n)
	t.Cleanup(e.engine.StopMonitoring)

	if !e.engine.IsMonitoring() {
		t.Fatal("IsMonitoring = false after start")
	}

	// Give the watcher a moment to establish its watches.
	time.Sleep(100 * time.Millisecond)

	writeRawNote(t, e.store, "watched.md", uuid.NewString(), "Watched", "body", time.Now())

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		n, _ := e.idx.GetTotalCount()
		return n == 1
	}, "new file not picked up by monitoring")

	e.engine.StopMonitoring()
	if e.engine.IsMonitoring() {
		t.Error("IsMonitoring = true after stop")
	}
}

func TestMonitoring_FollowsNewDirectories(t *testing.T) {
	e := newEnv(t, false)
	n := NewFSNotifier(e.store.Root(), 50*time.Millisecond, testLogger())

	e.engine.StartMonitoring(n)
	t.Cleanup(e.engine.StopMonitoring)
	time.Sleep(100 * time.Millisecond)

	// The note lands in a directory created after monitoring started.
	writeRawNote(t, e.store, "fresh/deep.md", uuid.NewString(), "Deep", "body", time.Now())

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		n, _ := e.idx.GetTotalCount()
		return n == 1
	}, "file in new subdirectory not picked up")
}

func TestMonitoring_PollerTriggersQuickSync(t *testing.T) {
	e := newEnv(t, false)
	e.engine.StartMonitoring(NewPoller(30 * time.Millisecond))
	t.Cleanup(e.engine.StopMonitoring)

	writeRawNote(t, e.store, "polled.md", uuid.NewString(), "Polled", "body", time.Now())

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		n, _ := e.idx.GetTotalCount()
		return n == 1
	}, "new file not picked up by polling")
}

func TestMonitoring_StartAndStopIdempotent(t *testing.T) {
	e := newEnv(t, false)

	// Stop without start is a no-op.
	e.engine.StopMonitoring()

	e.engine.StartMonitoring(NewPoller(time.Hour))
	e.engine.StartMonitoring(NewPoller(time.Hour)) // ignored
	if !e.engine.IsMonitoring() {
		t.Fatal("IsMonitoring = false after start")
	}

	e.engine.StopMonitoring()
	if e.engine.IsMonitoring() {
		t.Error("IsMonitoring = true after stop")
	}
	e.engine.StopMonitoring()
}

func TestNewNotifier_Selection(t *testing.T) {
	if _, err := NewNotifier("bogus", t.TempDir(), 0, 0, testLogger()); err == nil {
		t.Error("expected error for unknown strategy")
	}

	n, err := NewNotifier(StrategyPoll, t.TempDir(), 0, 0, testLogger())
	if err != nil {
		t.Fatalf("NewNotifier(poll): %v", err)
	}
	if _, ok := n.(*Poller); !ok {
		t.Errorf("strategy poll built %T", n)
	}

	n, err = NewNotifier(StrategyFSNotify, t.TempDir(), 0, 0, testLogger())
	if err != nil {
		t.Fatalf("NewNotifier(fsnotify): %v", err)
	}
	if _, ok := n.(*FSNotifier); !ok {
		t.Errorf("strategy fsnotify built %T", n)
	}

	if _, err := NewNotifier(StrategyAuto, t.TempDir(), 0, 0, testLogger()); err != nil {
		t.Errorf("NewNotifier(auto): %v", err)
	}
}
