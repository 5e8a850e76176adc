package orchestrator

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"

	"ghostswap/pkg/types"
)

// ActionStatus is the render state of an operation.
type ActionStatus string

const (
	ActionIdle     ActionStatus = "idle"
	ActionInFlight ActionStatus = "in-flight"
	ActionError    ActionStatus = "error"
)

// ActionState is what a UI shows for one operation on one subject.
type ActionState struct {
	Status ActionStatus
	Err    error
}

type actionKey struct {
	kind    types.TxKind
	subject string
}

// tokenSubject is the serialization subject of operations that consume token
// records but have no offer yet.
func tokenSubject(tokenID string) string {
	return "token:" + tokenID
}

// Action reports the state of kind on subject: an offer id, or the token id
// for create and mint.
func (o *Orchestrator) Action(kind types.TxKind, subject string) ActionState {
	if kind == types.TxCreate || kind == types.TxMint {
		subject = tokenSubject(subject)
	}
	key := actionKey{kind: kind, subject: subject}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.inflight[key]; busy {
		return ActionState{Status: ActionInFlight}
	}
	if err, failed := o.failures[key]; failed {
		return ActionState{Status: ActionError, Err: err}
	}
	return ActionState{Status: ActionIdle}
}

// begin marks kind on subject in flight and takes the subject's lock. A second
// submission of the same kind fails fast; other kinds on the same subject
// wait their turn.
func (o *Orchestrator) begin(ctx context.Context, kind types.TxKind, subject string) (func(error), error) {
	key := actionKey{kind: kind, subject: subject}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if _, busy := o.inflight[key]; busy {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s on %s", ErrOperationInFlight, kind, subject)
	}
	o.inflight[key] = struct{}{}
	delete(o.failures, key)

	sem, ok := o.locks[subject]
	if !ok {
		sem = semaphore.NewWeighted(1)
		o.locks[subject] = sem
	}
	o.mu.Unlock()

	if err := sem.Acquire(ctx, 1); err != nil {
		o.mu.Lock()
		delete(o.inflight, key)
		o.mu.Unlock()
		return nil, err
	}

	return func(err error) {
		sem.Release(1)

		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.inflight, key)
		if err != nil {
			o.failures[key] = err
		}
	}, nil
}
