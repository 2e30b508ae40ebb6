package locking

import (
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"corvusDB/errors"
)

func TestSharedLocksAreConcurrent(t *testing.T) {
	fl := NewFileLock("test.db", nil)

	for connID := uint64(1); connID <= 5; connID++ {
		if err := fl.AcquireShared(connID, 0); err != nil {
			t.Fatalf("shared acquisition %d failed: %v", connID, err)
		}
	}

	if fl.SharedCount() != 5 {
		t.Errorf("expected 5 shared holders, got %d", fl.SharedCount())
	}
	if fl.State() != LevelShared {
		t.Errorf("expected state SHARED, got %s", fl.State())
	}
}

func TestReservedIsExclusiveAmongWriters(t *testing.T) {
	fl := NewFileLock("test.db", nil)

	if err := fl.AcquireReserved(1, 101, 0); err != nil {
		t.Fatalf("first reserved failed: %v", err)
	}

	err := fl.AcquireReserved(2, 201, 0)
	if err == nil {
		t.Fatal("second reserved should fail while first is held")
	}
	if !errors.IsBusy(err) {
		t.Errorf("expected BUSY, got %v", err)
	}

	// The failed request must not disturb the holder.
	if fl.HeldLevel(1) != LevelReserved {
		t.Errorf("holder lost its lock, level = %s", fl.HeldLevel(1))
	}
	if fl.HeldLevel(2) != LevelNone {
		t.Errorf("failed requester should hold nothing, got %s", fl.HeldLevel(2))
	}
}

func TestWriterSlotIsPerTransaction(t *testing.T) {
	fl := NewFileLock("test.db", nil)

	// Two transactions on the same connection must serialize their
	// writes; granting both would let them clobber each other.
	if err := fl.AcquireReserved(1, 101, 0); err != nil {
		t.Fatalf("first transaction reserved failed: %v", err)
	}
	if err := fl.AcquireReserved(1, 102, 0); !errors.IsBusy(err) {
		t.Fatalf("second transaction on same connection: got %v, want BUSY", err)
	}

	// Re-acquiring for the holding transaction stays idempotent.
	if err := fl.AcquireReserved(1, 101, 0); err != nil {
		t.Errorf("idempotent re-acquire failed: %v", err)
	}

	// Releasing with the wrong transaction ID is a no-op.
	fl.ReleaseWriter(1, 102)
	if fl.HeldLevel(1) != LevelReserved {
		t.Errorf("foreign release disturbed the holder, level = %s", fl.HeldLevel(1))
	}

	fl.ReleaseWriter(1, 101)
	if err := fl.AcquireReserved(1, 102, 0); err != nil {
		t.Fatalf("second transaction should acquire after release: %v", err)
	}
}

func TestSharedRefusedWhileWriterReserved(t *testing.T) {
	fl := NewFileLock("test.db", nil)

	if err := fl.AcquireReserved(1, 101, 0); err != nil {
		t.Fatalf("reserved failed: %v", err)
	}
	if err := fl.AcquireShared(2, 0); !errors.IsBusy(err) {
		t.Errorf("expected BUSY for new reader under reserved, got %v", err)
	}
	// The writer's connection can still read.
	if err := fl.AcquireShared(1, 0); err != nil {
		t.Errorf("writer's own shared request failed: %v", err)
	}
}

func TestUpgradeFromSharedDoesNotSelfDeadlock(t *testing.T) {
	fl := NewFileLock("test.db", nil)

	if err := fl.AcquireShared(1, 0); err != nil {
		t.Fatalf("shared failed: %v", err)
	}
	if err := fl.AcquireReserved(1, 101, 0); err != nil {
		t.Fatalf("upgrade to reserved blocked by own shared lock: %v", err)
	}
	// Promotion must ignore the connection's own shared lock too.
	if err := fl.PromoteExclusive(1, 101, 0); err != nil {
		t.Fatalf("promotion blocked by own shared lock: %v", err)
	}
	if fl.HeldLevel(1) != LevelExclusive {
		t.Errorf("expected EXCLUSIVE, got %s", fl.HeldLevel(1))
	}
}

func TestPromotionWaitsForReadersToDrain(t *testing.T) {
	fl := NewFileLock("test.db", nil)

	if err := fl.AcquireShared(2, 0); err != nil {
		t.Fatalf("reader failed: %v", err)
	}
	if err := fl.AcquireReserved(1, 101, 0); err != nil {
		t.Fatalf("reserved failed: %v", err)
	}

	release := make(chan struct{})
	go func() {
		<-release
		fl.ReleaseShared(2)
	}()

	done := make(chan error, 1)
	go func() {
		done <- fl.PromoteExclusive(1, 101, time.Second)
	}()

	// The writer must sit in PENDING while the reader is active.
	waitForState(t, fl, LevelPending)

	// New readers are refused during the drain.
	if err := fl.AcquireShared(3, 0); !errors.IsBusy(err) {
		t.Errorf("expected BUSY for reader during pending drain, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("promotion failed after drain: %v", err)
	}
	if fl.State() != LevelExclusive {
		t.Errorf("expected EXCLUSIVE, got %s", fl.State())
	}
}

func TestPromotionTimeoutRevertsToReserved(t *testing.T) {
	fl := NewFileLock("test.db", nil)

	if err := fl.AcquireShared(2, 0); err != nil {
		t.Fatalf("reader failed: %v", err)
	}
	if err := fl.AcquireReserved(1, 101, 0); err != nil {
		t.Fatalf("reserved failed: %v", err)
	}

	err := fl.PromoteExclusive(1, 101, 30*time.Millisecond)
	if !errors.IsBusy(err) {
		t.Fatalf("expected BUSY, got %v", err)
	}
	if fl.HeldLevel(1) != LevelReserved {
		t.Errorf("expected revert to RESERVED, got %s", fl.HeldLevel(1))
	}

	// A later attempt succeeds once the reader is gone.
	fl.ReleaseShared(2)
	if err := fl.PromoteExclusive(1, 101, 0); err != nil {
		t.Fatalf("promotion after drain failed: %v", err)
	}
}

func TestBusyTimeoutActuallyWaits(t *testing.T) {
	fl := NewFileLock("test.db", nil)

	if err := fl.AcquireReserved(1, 101, 0); err != nil {
		t.Fatalf("reserved failed: %v", err)
	}

	const timeout = 100 * time.Millisecond
	start := time.Now()
	err := fl.AcquireReserved(2, 201, timeout)
	elapsed := time.Since(start)

	if !errors.IsBusy(err) {
		t.Fatalf("expected BUSY, got %v", err)
	}
	if elapsed < timeout/2 {
		t.Errorf("returned after %v, expected to wait close to %v", elapsed, timeout)
	}
	if elapsed > timeout+100*time.Millisecond {
		t.Errorf("waited %v, much longer than timeout %v", elapsed, timeout)
	}
}

func TestZeroTimeoutFailsImmediately(t *testing.T) {
	fl := NewFileLock("test.db", nil)

	if err := fl.AcquireReserved(1, 101, 0); err != nil {
		t.Fatalf("reserved failed: %v", err)
	}

	start := time.Now()
	err := fl.AcquireReserved(2, 201, 0)
	if !errors.IsBusy(err) {
		t.Fatalf("expected BUSY, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("zero timeout took %v, expected immediate failure", elapsed)
	}
}

func TestWaiterGetsLockWhenHolderReleases(t *testing.T) {
	fl := NewFileLock("test.db", nil)

	if err := fl.AcquireReserved(1, 101, 0); err != nil {
		t.Fatalf("reserved failed: %v", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		fl.ReleaseWriter(1, 101)
	}()

	if err := fl.AcquireReserved(2, 201, time.Second); err != nil {
		t.Fatalf("waiter should acquire after release: %v", err)
	}
	if fl.HeldLevel(2) != LevelReserved {
		t.Errorf("expected RESERVED for waiter, got %s", fl.HeldLevel(2))
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	fl := NewFileLock("test.db", nil)

	if err := fl.AcquireShared(1, 0); err != nil {
		t.Fatalf("shared failed: %v", err)
	}
	if err := fl.AcquireReserved(2, 201, 0); err != nil {
		t.Fatalf("reserved failed: %v", err)
	}

	// Double release and releasing never-held locks must not corrupt
	// state for other connections.
	fl.ReleaseAll(1)
	fl.ReleaseAll(1)
	fl.ReleaseShared(3)
	fl.ReleaseWriter(3, 301)

	if fl.HeldLevel(2) != LevelReserved {
		t.Errorf("unrelated release disturbed writer, level = %s", fl.HeldLevel(2))
	}

	fl.ReleaseAll(2)
	fl.ReleaseAll(2)
	if fl.State() != LevelNone {
		t.Errorf("expected UNLOCKED after all releases, got %s", fl.State())
	}
}

func TestSharedLocksAreRefCountedPerConnection(t *testing.T) {
	fl := NewFileLock("test.db", nil)

	// Two overlapping reads on the same connection.
	if err := fl.AcquireShared(1, 0); err != nil {
		t.Fatalf("first shared failed: %v", err)
	}
	if err := fl.AcquireShared(1, 0); err != nil {
		t.Fatalf("second shared failed: %v", err)
	}

	// Finishing one read must not release the other's lock.
	fl.ReleaseShared(1)
	if fl.HeldLevel(1) != LevelShared {
		t.Errorf("remaining read lost its lock, level = %s", fl.HeldLevel(1))
	}

	fl.ReleaseShared(1)
	if fl.State() != LevelNone {
		t.Errorf("expected UNLOCKED, got %s", fl.State())
	}
}

func TestWritersAreSerialized(t *testing.T) {
	fl := NewFileLock("test.db", nil)

	var mu sync.Mutex
	inCritical := 0
	maxInCritical := 0

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		connID := uint64(i + 1)
		g.Go(func() error {
			for j := 0; j < 5; j++ {
				txnID := connID*1000 + uint64(j)
				if err := fl.AcquireReserved(connID, txnID, 5*time.Second); err != nil {
					return err
				}
				if err := fl.PromoteExclusive(connID, txnID, 5*time.Second); err != nil {
					return err
				}

				mu.Lock()
				inCritical++
				if inCritical > maxInCritical {
					maxInCritical = inCritical
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inCritical--
				mu.Unlock()

				fl.ReleaseWriter(connID, txnID)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		t.Fatalf("writer failed: %v", err)
	}
	if maxInCritical != 1 {
		t.Errorf("exclusive sections overlapped, max concurrent = %d", maxInCritical)
	}
	if fl.State() != LevelNone {
		t.Errorf("expected UNLOCKED at end, got %s", fl.State())
	}
}

func waitForState(t *testing.T, fl *FileLock, want Level) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if fl.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("lock never reached state %s, stuck at %s", want, fl.State())
}
