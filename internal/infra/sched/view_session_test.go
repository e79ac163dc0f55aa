//go:build !integration

package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"streamboost-dashboard/internal/domain"
	"streamboost-dashboard/internal/domain/model"
	"streamboost-dashboard/internal/infra/worker"
	"streamboost-dashboard/internal/usecase"
)

var owner = model.Viewer{UserID: "alice", Role: model.RoleUser}

type sessionFixture struct {
	repo    *memOrderRepo
	locker  *fakeLocker
	pool    *inlinePool
	ticks   chan time.Time
	session *ViewSession
}

// newSession loads the tracker but does not start the loop.
func newSession(t *testing.T, seed func(*memOrderRepo)) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		repo:   newMemOrderRepo(),
		locker: newFakeLocker(),
		pool:   &inlinePool{},
		ticks:  make(chan time.Time, 16),
	}
	if seed != nil {
		seed(f.repo)
	}
	tr := usecase.NewTracker(f.repo, owner, newTestLogger())
	if err := tr.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	f.session = NewViewSession("view-1", tr, f.pool, f.locker, SessionOptions{Ticks: f.ticks}, newTestLogger())
	t.Cleanup(f.session.Close)
	return f
}

func (f *sessionFixture) tickN(n int) {
	for i := 0; i < n; i++ {
		f.ticks <- time.Now()
	}
}

// settle waits until every queued tick has been taken and then makes a round
// trip through the loop, so those ticks have been fully applied.
func (f *sessionFixture) settle(t *testing.T) {
	t.Helper()
	waitFor(t, "ticks consumed", func() bool { return len(f.ticks) == 0 })
	if err := f.session.DismissNotices(context.Background(), "none"); err != nil {
		t.Fatalf("round trip: %v", err)
	}
}

func TestViewSessionCompletesExpiredOrderOnce(t *testing.T) {
	f := newSession(t, func(r *memOrderRepo) { r.seedActive("o1", "alice", 3*time.Second) })
	remaining := f.session.Snapshot().Timers["o1"].RemainingSeconds
	if remaining < 2 || remaining > 3 {
		t.Fatalf("unexpected initial remaining %d", remaining)
	}
	f.session.Start(context.Background())

	f.tickN(int(remaining))
	waitFor(t, "o1 to leave the view", func() bool { return !f.session.Snapshot().Tracked("o1") })

	f.tickN(3)
	f.settle(t)
	if err := f.session.Pause(context.Background(), "o1"); !errors.Is(err, domain.ErrNotTracked) {
		t.Fatalf("expected ErrNotTracked after completion, got %v", err)
	}
	if got := f.repo.writesFor("o1"); len(got) != 1 || got[0] != model.OrderStatusCompleted {
		t.Errorf("expected exactly one completed write, got %v", got)
	}
	if n := f.locker.grants(); n != 1 {
		t.Errorf("expected the completion to take the lock once, got %d", n)
	}
}

func TestViewSessionCancelBeatsExpiryInTheSameSecond(t *testing.T) {
	f := newSession(t, func(r *memOrderRepo) { r.seedActive("a", "alice", 1500*time.Millisecond) })
	if rem := f.session.Snapshot().Timers["a"].RemainingSeconds; rem != 1 {
		t.Fatalf("expected 1s remaining, got %d", rem)
	}

	// both the cancel and the tick are queued before the loop runs
	reply := make(chan error, 1)
	f.session.cmds <- command{kind: cmdCancel, orderID: "a", reply: reply}
	f.ticks <- time.Now()
	f.session.Start(context.Background())

	select {
	case err := <-reply:
		if err != nil {
			t.Fatalf("cancel failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancel")
	}
	f.tickN(2)
	waitFor(t, "a to leave the view", func() bool { return !f.session.Snapshot().Tracked("a") })

	if f.repo.status("a") != model.OrderStatusCancelled {
		t.Errorf("expected cancelled, got %s", f.repo.status("a"))
	}
	if got := f.repo.writesFor("a"); len(got) != 1 {
		t.Errorf("expected exactly one store write, got %v", got)
	}
}

func TestViewSessionRetriesAfterLosingTheLock(t *testing.T) {
	f := newSession(t, func(r *memOrderRepo) { r.seedActive("o1", "alice", -time.Minute) })
	f.locker.setRefuse(true)
	f.session.Start(context.Background())

	f.tickN(2)
	f.settle(t)
	waitFor(t, "skipped completion to settle", func() bool { return !f.session.Snapshot().Timers["o1"].InFlight() })
	if len(f.repo.writesFor("o1")) != 0 {
		t.Fatal("expected no write while another view holds the lock")
	}
	if e := f.session.Snapshot().Timers["o1"]; e.Attempts != 0 {
		t.Fatalf("expected no failure recorded for a lost lock, got %+v", e)
	}

	f.locker.setRefuse(false)
	f.tickN(1)
	waitFor(t, "o1 completed", func() bool { return f.repo.status("o1") == model.OrderStatusCompleted })
	waitFor(t, "o1 dropped", func() bool { return !f.session.Snapshot().Tracked("o1") })
}

func TestViewSessionManualActions(t *testing.T) {
	ctx := context.Background()

	t.Run("should pause and resume without touching the store", func(t *testing.T) {
		f := newSession(t, func(r *memOrderRepo) { r.seedActive("o1", "alice", time.Hour) })
		f.session.Start(ctx)

		if err := f.session.Pause(ctx, "o1"); err != nil {
			t.Fatalf("Pause: %v", err)
		}
		before := f.session.Snapshot().Timers["o1"].RemainingSeconds
		f.tickN(3)
		f.settle(t)
		if got := f.session.Snapshot().Timers["o1"]; got.RemainingSeconds != before || got.State() != model.TimerPaused {
			t.Errorf("expected frozen countdown, got %+v", got)
		}
		if err := f.session.Resume(ctx, "o1"); err != nil {
			t.Fatalf("Resume: %v", err)
		}
		f.tickN(1)
		waitFor(t, "countdown to resume", func() bool {
			return f.session.Snapshot().Timers["o1"].RemainingSeconds == before-1
		})
		if len(f.repo.writesFor("o1")) != 0 {
			t.Error("expected no store writes for pause/resume")
		}
	})

	t.Run("should complete on request and report a second request as untracked", func(t *testing.T) {
		f := newSession(t, func(r *memOrderRepo) { r.seedActive("o1", "alice", time.Hour) })
		f.session.Start(ctx)

		if err := f.session.Complete(ctx, "o1"); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if err := f.session.Complete(ctx, "o1"); !errors.Is(err, domain.ErrNotTracked) {
			t.Errorf("expected ErrNotTracked, got %v", err)
		}
		if got := f.repo.writesFor("o1"); len(got) != 1 {
			t.Errorf("expected one write, got %v", got)
		}
		// manual completion does not need the cross-view lock
		if n := f.locker.grants(); n != 0 {
			t.Errorf("expected no lock for a manual completion, got %d", n)
		}
	})

	t.Run("should report a transition the store already closed", func(t *testing.T) {
		f := newSession(t, func(r *memOrderRepo) { r.seedActive("o1", "alice", time.Hour) })
		f.session.Start(ctx)
		if _, err := f.repo.UpdateStatus(ctx, nil, "o1", model.OrderStatusCompleted); err != nil {
			t.Fatalf("seed: %v", err)
		}
		if err := f.session.Cancel(ctx, "o1"); !errors.Is(err, domain.ErrTerminalState) {
			t.Fatalf("expected ErrTerminalState, got %v", err)
		}
		if f.session.Snapshot().Tracked("o1") {
			t.Error("expected the view to reconcile and drop o1")
		}
	})

	t.Run("should surface a saturated pool as a write error", func(t *testing.T) {
		f := newSession(t, func(r *memOrderRepo) { r.seedActive("o1", "alice", time.Hour) })
		f.pool.err = worker.ErrQueueFull
		f.session.Start(ctx)
		if err := f.session.Cancel(ctx, "o1"); !errors.Is(err, domain.ErrWrite) {
			t.Fatalf("expected ErrWrite, got %v", err)
		}
		if !f.session.Snapshot().Tracked("o1") {
			t.Error("expected o1 to stay actionable")
		}
	})
}

func TestViewSessionRefresh(t *testing.T) {
	ctx := context.Background()
	f := newSession(t, func(r *memOrderRepo) { r.seedActive("o1", "alice", time.Hour) })
	f.session.Start(ctx)

	f.repo.seedActive("o2", "alice", time.Hour)
	if err := f.session.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n := len(f.session.Snapshot().Orders); n != 2 {
		t.Fatalf("expected 2 orders after refresh, got %d", n)
	}

	f.repo.setFetchErr(errors.New("db down"))
	if err := f.session.Refresh(ctx); !errors.Is(err, domain.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
	snap := f.session.Snapshot()
	if len(snap.Orders) != 2 || !snap.Tracked("o1") || !snap.Tracked("o2") {
		t.Error("expected previous state to survive a failed refresh")
	}
	if last := snap.Notifications[len(snap.Notifications)-1]; last.Level != model.NoticeError {
		t.Errorf("expected an error notice, got %+v", last)
	}
}

func TestViewSessionClose(t *testing.T) {
	ctx := context.Background()
	f := newSession(t, func(r *memOrderRepo) { r.seedActive("o1", "alice", time.Hour) })
	f.session.Start(ctx)

	f.session.Close()
	select {
	case <-f.session.Done():
	default:
		t.Fatal("expected Done to be closed after Close returns")
	}
	before := f.session.Snapshot().Timers["o1"].RemainingSeconds
	f.tickN(5)
	time.Sleep(20 * time.Millisecond)
	if after := f.session.Snapshot().Timers["o1"].RemainingSeconds; after != before {
		t.Errorf("expected no ticks after Close, remaining moved %d -> %d", before, after)
	}
	if err := f.session.Cancel(ctx, "o1"); !errors.Is(err, domain.ErrViewClosed) {
		t.Errorf("expected ErrViewClosed, got %v", err)
	}
	f.session.Close() // idempotent
}

func TestViewSessionWithWorkerPool(t *testing.T) {
	ctx := context.Background()
	pool := worker.NewPool(2, newTestLogger())
	pool.Start(ctx)
	defer pool.Stop()

	repo := newMemOrderRepo()
	repo.seedActive("o1", "alice", -time.Second)
	repo.seedActive("o2", "alice", -time.Second)
	tr := usecase.NewTracker(repo, owner, newTestLogger())
	if err := tr.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ticks := make(chan time.Time, 4)
	s := NewViewSession("view-pool", tr, pool, nil, SessionOptions{Ticks: ticks}, newTestLogger())
	s.Start(ctx)
	defer s.Close()

	ticks <- time.Now()
	waitFor(t, "both orders completed", func() bool {
		return repo.status("o1") == model.OrderStatusCompleted && repo.status("o2") == model.OrderStatusCompleted
	})
	waitFor(t, "view emptied", func() bool { return len(s.Snapshot().Timers) == 0 })
}

func TestViewSessionStaysResponsiveWhileReadingBackALostWrite(t *testing.T) {
	ctx := context.Background()
	pool := worker.NewPool(2, newTestLogger())
	pool.Start(ctx)
	defer pool.Stop()

	repo := newMemOrderRepo()
	repo.seedActive("x", "alice", -time.Second)
	repo.seedActive("y", "alice", time.Hour)
	tr := usecase.NewTracker(repo, owner, newTestLogger())
	if err := tr.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	// another view already cancelled x
	if _, err := repo.UpdateStatus(ctx, nil, "x", model.OrderStatusCancelled); err != nil {
		t.Fatalf("seed: %v", err)
	}
	release := repo.holdFindByID()
	defer release()

	ticks := make(chan time.Time, 4)
	s := NewViewSession("view-slow", tr, pool, nil, SessionOptions{Ticks: ticks, WriteTimeout: 5 * time.Second}, newTestLogger())
	s.Start(ctx)
	defer s.Close()

	ticks <- time.Now()
	waitFor(t, "read back started", func() bool { return repo.findCalls.Load() > 0 })

	paused := make(chan error, 1)
	go func() { paused <- s.Pause(ctx, "y") }()
	select {
	case err := <-paused:
		if err != nil {
			t.Fatalf("Pause: %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected Pause to answer while the store read is outstanding")
	}
	if !s.Snapshot().Tracked("x") {
		t.Fatal("expected x to stay tracked until the read back lands")
	}

	release()
	waitFor(t, "x reconciled", func() bool { return !s.Snapshot().Tracked("x") })
	notes := s.Snapshot().Notifications
	if last := notes[len(notes)-1]; last.Title != "Order already finished" {
		t.Errorf("expected a reconcile notice, got %+v", last)
	}
	if got := repo.writesFor("x"); len(got) != 1 {
		t.Errorf("expected only the other view's write, got %v", got)
	}
}

func TestViewSessionCloseRacingStart(t *testing.T) {
	for i := 0; i < 50; i++ {
		tr := usecase.NewTracker(newMemOrderRepo(), owner, newTestLogger())
		s := NewViewSession("view-race", tr, &inlinePool{}, nil, SessionOptions{Ticks: make(chan time.Time)}, newTestLogger())

		started := make(chan struct{})
		go func() {
			s.Start(context.Background())
			close(started)
		}()
		s.Close()
		<-started
		s.Close()

		select {
		case <-s.Done():
		case <-time.After(time.Second):
			t.Fatalf("iteration %d: loop still running after Close", i)
		}
	}
}

func TestViewSessionStartAfterCloseIsNoop(t *testing.T) {
	tr := usecase.NewTracker(newMemOrderRepo(), owner, newTestLogger())
	s := NewViewSession("view-closed", tr, &inlinePool{}, nil, SessionOptions{Ticks: make(chan time.Time)}, newTestLogger())
	s.Close()
	s.Start(context.Background())
	if err := s.Pause(context.Background(), "o1"); !errors.Is(err, domain.ErrViewClosed) {
		t.Errorf("expected ErrViewClosed, got %v", err)
	}
}
