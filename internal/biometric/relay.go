// Package biometric provides BiometricSensor implementations for hosts where
// the platform prompt is shown by the UI shell rather than by this process.
package biometric

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BradenHooton/pinguard/internal/models"
	"github.com/google/uuid"
)

// Capability is what the platform reports about its biometric hardware.
type Capability struct {
	HasHardware bool                   `json:"has_hardware"`
	Enrolled    bool                   `json:"enrolled"`
	Kinds       []models.BiometricKind `json:"kinds"`
}

// Outcome is the shell's answer to a prompt.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSucceeded, OutcomeFailed, OutcomeCancelled:
		return true
	}
	return false
}

// Prompt is an outstanding challenge waiting for the shell.
type Prompt struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type pendingPrompt struct {
	Prompt
	result chan Outcome
}

// Relay hands challenges to the UI shell and waits for its answer. At most
// one challenge is outstanding at a time.
type Relay struct {
	mu         sync.Mutex
	capability Capability
	pending    *pendingPrompt
	now        func() time.Time
}

func NewRelay(now func() time.Time) *Relay {
	if now == nil {
		now = time.Now
	}
	return &Relay{now: now}
}

// SetCapability records what the platform reports.
func (r *Relay) SetCapability(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Kinds = append([]models.BiometricKind(nil), c.Kinds...)
	r.capability = c
}

func (r *Relay) HasHardware(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capability.HasHardware, nil
}

func (r *Relay) IsEnrolled(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capability.HasHardware && r.capability.Enrolled, nil
}

func (r *Relay) SupportedKinds(ctx context.Context) ([]models.BiometricKind, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.BiometricKind(nil), r.capability.Kinds...), nil
}

// Authenticate publishes a prompt and blocks until the shell resolves it or
// ctx is done.
func (r *Relay) Authenticate(ctx context.Context, message string) error {
	r.mu.Lock()
	if !r.capability.HasHardware || !r.capability.Enrolled {
		r.mu.Unlock()
		return models.ErrBiometricUnavailable
	}
	if r.pending != nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: challenge already in progress", models.ErrBiometricUnavailable)
	}
	p := &pendingPrompt{
		Prompt: Prompt{ID: uuid.NewString(), Message: message, CreatedAt: r.now()},
		result: make(chan Outcome, 1),
	}
	r.pending = p
	r.mu.Unlock()

	defer r.clear(p)

	select {
	case outcome := <-p.result:
		switch outcome {
		case OutcomeSucceeded:
			return nil
		case OutcomeCancelled:
			return models.ErrBiometricCancelled
		default:
			return models.ErrBiometricFailed
		}
	case <-ctx.Done():
		return models.ErrBiometricCancelled
	}
}

// Pending returns the outstanding prompt, if any.
func (r *Relay) Pending() (Prompt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return Prompt{}, false
	}
	return r.pending.Prompt, true
}

// Resolve delivers the shell's answer for prompt id.
func (r *Relay) Resolve(id string, outcome Outcome) error {
	if !outcome.Valid() {
		return models.ErrBadRequest
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil || r.pending.ID != id {
		return models.ErrNotFound
	}
	select {
	case r.pending.result <- outcome:
	default:
		return models.ErrConflict
	}
	// Answered; a repeat for the same id must not look accepted.
	r.pending = nil
	return nil
}

func (r *Relay) clear(p *pendingPrompt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == p {
		r.pending = nil
	}
}
