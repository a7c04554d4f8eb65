package arbiter_test

import (
	"errors"
	"testing"

	"github.com/alfielabs/alfie-voice/internal/arbiter"
)

type cancelRecorder struct {
	calls int
	err   error
}

func (c *cancelRecorder) CancelResponse() error {
	c.calls++
	return c.err
}

func TestOwnershipIsFalseAtRest(t *testing.T) {
	t.Parallel()

	a := arbiter.New(&cancelRecorder{})
	if a.Owned() {
		t.Fatal("ownership must start false")
	}

	a.Acquire()
	a.Release()
	if a.Owned() {
		t.Fatal("ownership must be false after release")
	}
}

func TestBeginTurn_CancelsWhenNotOwned(t *testing.T) {
	t.Parallel()

	rec := &cancelRecorder{}
	a := arbiter.New(rec)

	a.BeginTurn()
	if rec.calls != 1 {
		t.Fatalf("want 1 cancel before classification, got %d", rec.calls)
	}
}

func TestBeginTurn_NeverCancelsOwnReply(t *testing.T) {
	t.Parallel()

	rec := &cancelRecorder{}
	a := arbiter.New(rec)

	a.Acquire()
	a.BeginTurn()
	if rec.calls != 0 {
		t.Fatalf("owned reply was cancelled: %d calls", rec.calls)
	}

	a.Release()
	a.BeginTurn()
	if rec.calls != 1 {
		t.Fatalf("want cancel after release, got %d calls", rec.calls)
	}
}

func TestBeginTurn_ToleratesCancelErrors(t *testing.T) {
	t.Parallel()

	rec := &cancelRecorder{err: errors.New("not supported")}
	a := arbiter.New(rec)

	// Must not panic or change ownership.
	a.BeginTurn()
	if a.Owned() {
		t.Fatal("cancel failure must not flip ownership")
	}
}
