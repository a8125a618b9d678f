// Package certificate defines the retirement-certificate collaborator.
// Finalizing a retirement registers an auditable event with the issuer,
// which mints the non-fungible receipt outside this module.
package certificate

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/creditledger-xyz/go-creditledger/vintage"
)

// Issuer receives finalized retirement events.
type Issuer interface {
	// RegisterRetirementEvent records a permanent offset claim and
	// returns the issuer's event id.
	RegisterRetirementEvent(retiringEntity string, ref vintage.Ref, amount *uint256.Int) (string, error)
}

// Event is one recorded retirement.
type Event struct {
	ID             string
	RetiringEntity string
	Vintage        vintage.Ref
	Amount         *uint256.Int
	RegisteredAt   time.Time
}

// Recorder is an in-process Issuer that keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RegisterRetirementEvent implements Issuer.
func (r *Recorder) RegisterRetirementEvent(retiringEntity string, ref vintage.Ref, amount *uint256.Int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := Event{
		ID:             uuid.New().String(),
		RetiringEntity: retiringEntity,
		Vintage:        ref,
		Amount:         new(uint256.Int).Set(amount),
		RegisteredAt:   time.Now().UTC(),
	}
	r.events = append(r.events, ev)
	return ev.ID, nil
}

// Events returns a copy of all recorded events in registration order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
