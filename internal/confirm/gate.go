// Package confirm implements the two-phase confirmation gate that guards
// irreversible batch actions. Requesting an action and approving it are
// separate calls that may be arbitrarily far apart; execution only happens
// after an explicit approve, and every decision is auditable.
package confirm

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"parley/internal/domain"
)

var (
	// ErrNotFound is returned for unknown action ids.
	ErrNotFound = errors.New("confirmation not found")
	// ErrAlreadyProcessed is returned when approving or rejecting an action
	// that already reached a terminal state. Callers rely on this to detect
	// double submission.
	ErrAlreadyProcessed = errors.New("confirmation already processed")
)

// Gate tracks pending confirmations. Terminal records stay around for audit
// until swept.
type Gate struct {
	mu       sync.Mutex
	pending  map[string]*domain.PendingAction
	order    []string
	executed []string
	rejected []string
	Now      func() time.Time
}

// NewGate returns an empty confirmation gate.
func NewGate() *Gate {
	return &Gate{pending: make(map[string]*domain.PendingAction), Now: time.Now}
}

func (g *Gate) timestamp() string {
	if g.Now == nil {
		g.Now = time.Now
	}
	return g.Now().UTC().Format(time.RFC3339)
}

// Request records a new pending action and returns it. It always succeeds.
func (g *Gate) Request(actionID string, actionType domain.ActionType, description string, details domain.ActionDetails) domain.PendingAction {
	g.mu.Lock()
	defer g.mu.Unlock()
	req := &domain.PendingAction{
		ActionID:    actionID,
		Type:        actionType,
		Description: description,
		Details:     details,
		RequestedAt: g.timestamp(),
	}
	g.pending[actionID] = req
	g.order = append(g.order, actionID)
	return *req
}

// Approve marks the action confirmed. Approval does not execute anything;
// the caller runs the executor afterwards using the details captured at
// request time.
func (g *Gate) Approve(actionID string) (domain.PendingAction, error) {
	return g.decide(actionID, true)
}

// Reject marks the action rejected.
func (g *Gate) Reject(actionID string) (domain.PendingAction, error) {
	return g.decide(actionID, false)
}

func (g *Gate) decide(actionID string, approved bool) (domain.PendingAction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.pending[actionID]
	if !ok {
		return domain.PendingAction{}, fmt.Errorf("%w: %s", ErrNotFound, actionID)
	}
	if req.Confirmed || req.Rejected {
		return *req, fmt.Errorf("%w: %s", ErrAlreadyProcessed, actionID)
	}
	if approved {
		req.Confirmed = true
		g.executed = append(g.executed, actionID)
	} else {
		req.Rejected = true
		g.rejected = append(g.rejected, actionID)
	}
	return *req, nil
}

// Get returns the action record, terminal or not.
func (g *Gate) Get(actionID string) (domain.PendingAction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.pending[actionID]
	if !ok {
		return domain.PendingAction{}, fmt.Errorf("%w: %s", ErrNotFound, actionID)
	}
	return *req, nil
}

// Pending lists records where neither terminal flag is set, in request order.
func (g *Gate) Pending() []domain.PendingAction {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.PendingAction, 0, len(g.order))
	for _, id := range g.order {
		req, ok := g.pending[id]
		if !ok || req.Confirmed || req.Rejected {
			continue
		}
		out = append(out, *req)
	}
	return out
}

// Sweep purges terminal records, returning how many were removed. Pending
// records are never purged.
func (g *Gate) Sweep() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	kept := g.order[:0]
	for _, id := range g.order {
		req := g.pending[id]
		if req.Confirmed || req.Rejected {
			delete(g.pending, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	g.order = kept
	return removed
}

// Summary reports counters for status endpoints and the CLI.
type Summary struct {
	PendingCount  int `json:"pending_count"`
	ExecutedCount int `json:"executed_count"`
	RejectedCount int `json:"rejected_count"`
}

// Stats returns audit counters.
func (g *Gate) Stats() Summary {
	g.mu.Lock()
	defer g.mu.Unlock()
	pending := 0
	for _, req := range g.pending {
		if !req.Confirmed && !req.Rejected {
			pending++
		}
	}
	return Summary{
		PendingCount:  pending,
		ExecutedCount: len(g.executed),
		RejectedCount: len(g.rejected),
	}
}
