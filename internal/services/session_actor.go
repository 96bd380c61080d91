package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"

	"github.com/stonecode/pickmyroute/server/internal/lib/navigation"
)

// command is one unit of session work. ctx is the caller's context; a
// command whose caller has already given up is never applied.
type command struct {
	ctx    context.Context
	fn     func(a *sessionActor) error
	result chan error
}

// sessionActor serialises every command for one session on its own goroutine.
// plan and session are only touched from that goroutine.
type sessionActor struct {
	id        string
	createdAt time.Time
	now       func() time.Time

	commands chan command
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once

	lastActive atomic.Int64

	session *navigation.Session
	plan    Plan
}

func newSessionActor(id string, session *navigation.Session, buffer int, now func() time.Time) *sessionActor {
	a := &sessionActor{
		id:        id,
		createdAt: now(),
		now:       now,
		commands:  make(chan command, buffer),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		session:   session,
	}
	a.touch()
	return a
}

func (a *sessionActor) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-a.stop:
			return
		case cmd := <-a.commands:
			cmd.result <- a.apply(ctx, cmd)
		}
	}
}

// apply runs one command, converting a panic into an error so the session
// goroutine survives. Commands whose caller's context is done are skipped.
func (a *sessionActor) apply(ctx context.Context, cmd command) (err error) {
	if err := cmd.ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			stackErr, _ := errors.ParseStack(debug.Stack())
			logging.Errorw(ctx, "Session command panicked", "session", a.id, "error", r, "error.stack_trace", stackErr.MinimalStack(3, 5))
			err = fmt.Errorf("session %s command panicked: %v", a.id, r)
		}
	}()
	a.touch()
	return cmd.fn(a)
}

// do enqueues fn and waits for its result. Once queued, the command either
// runs or is skipped by the actor, and do reports which: a caller never sees
// a context error for a command that was applied.
func (a *sessionActor) do(ctx context.Context, fn func(a *sessionActor) error) error {
	cmd := command{ctx: ctx, fn: fn, result: make(chan error, 1)}

	select {
	case a.commands <- cmd:
	case <-a.done:
		return fmt.Errorf("%w: %s", ErrSessionClosed, a.id)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.result:
		return err
	case <-a.done:
		// The command may have completed just before the actor stopped.
		select {
		case err := <-cmd.result:
			return err
		default:
			return fmt.Errorf("%w: %s", ErrSessionClosed, a.id)
		}
	}
}

func (a *sessionActor) close() {
	a.once.Do(func() { close(a.stop) })
	<-a.done
}

func (a *sessionActor) touch() {
	a.lastActive.Store(a.now().UnixNano())
}

func (a *sessionActor) idleSince() time.Time {
	return time.Unix(0, a.lastActive.Load())
}

func (a *sessionActor) info() SessionInfo {
	return SessionInfo{ID: a.id, CreatedAt: a.createdAt, LastActive: a.idleSince()}
}
