package refresher

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

type stubUpdater struct {
	added int
	err   error
	calls int
}

func (s *stubUpdater) Update(context.Context) (int, error) {
	s.calls++
	return s.added, s.err
}

func testOptions() Options {
	return Options{Interval: time.Hour, MinGap: time.Minute, LockTimeout: time.Second}
}

func TestRunOnceUpdatesAndRecordsSuccess(t *testing.T) {
	updater := &stubUpdater{added: 7}
	var result Result
	opts := testOptions()
	opts.OnResult = func(r Result) { result = r }
	r := New(updater, filepath.Join(t.TempDir(), "refresh.lock"), opts)

	if err := r.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if updater.calls != 1 {
		t.Errorf("updater called %d times", updater.calls)
	}
	if result.Added != 7 || result.RunID == "" || result.Err != nil {
		t.Errorf("result = %+v", result)
	}
	if r.LastSuccess().IsZero() {
		t.Error("last success not recorded")
	}
}

func TestRunOnceHonorsMinGap(t *testing.T) {
	updater := &stubUpdater{}
	r := New(updater, filepath.Join(t.TempDir(), "refresh.lock"), testOptions())
	r.MarkSuccess(time.Now())

	err := r.RunOnce(context.Background())
	if !errors.Is(err, ErrSkipped) {
		t.Fatalf("err = %v, want ErrSkipped", err)
	}
	if updater.calls != 0 {
		t.Errorf("updater called %d times during gap", updater.calls)
	}
}

func TestRunOnceSkipsWhilePlaying(t *testing.T) {
	updater := &stubUpdater{}
	opts := testOptions()
	opts.Playing = func() bool { return true }
	r := New(updater, filepath.Join(t.TempDir(), "refresh.lock"), opts)

	if err := r.RunOnce(context.Background()); !errors.Is(err, ErrSkipped) {
		t.Fatalf("err = %v, want ErrSkipped", err)
	}
	if updater.calls != 0 {
		t.Error("updater called while playing")
	}
}

func TestRunOnceFailureKeepsLastSuccess(t *testing.T) {
	updater := &stubUpdater{err: errors.New("remote down")}
	var result Result
	opts := testOptions()
	opts.OnResult = func(r Result) { result = r }
	r := New(updater, filepath.Join(t.TempDir(), "refresh.lock"), opts)

	err := r.RunOnce(context.Background())
	if err == nil || errors.Is(err, ErrSkipped) {
		t.Fatalf("err = %v, want update failure", err)
	}
	if result.Err == nil {
		t.Error("failure not reported to OnResult")
	}
	if !r.LastSuccess().IsZero() {
		t.Error("failed run recorded as success")
	}
}

func TestRunOnceStaleLock(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "refresh.lock")
	opts := testOptions()
	opts.LockTimeout = 100 * time.Millisecond

	holder := New(&stubUpdater{}, lockPath, opts)
	if err := holder.RunOnce(context.Background()); err != nil {
		t.Fatalf("first RunOnce: %v", err)
	}

	// Hold the lock ourselves, then watch a second refresher time out.
	if err := holder.lock.Lock(); err != nil {
		t.Fatalf("take lock: %v", err)
	}
	defer holder.lock.Unlock()

	blocked := New(&stubUpdater{}, lockPath, opts)
	if err := blocked.RunOnce(context.Background()); !errors.Is(err, ErrStaleLock) {
		t.Fatalf("err = %v, want ErrStaleLock", err)
	}
}

func TestMarkSuccessKeepsNewest(t *testing.T) {
	r := New(&stubUpdater{}, filepath.Join(t.TempDir(), "refresh.lock"), testOptions())
	newer := time.Now()
	older := newer.Add(-time.Hour)
	r.MarkSuccess(newer)
	r.MarkSuccess(older)
	if !r.LastSuccess().Equal(newer) {
		t.Errorf("LastSuccess = %v, want %v", r.LastSuccess(), newer)
	}
}
