// Package subscription applies billing events to subscriber access state.
// The state machine is deliberately small: payments either succeed or fail,
// and only transitions across the active boundary trigger access syncs.
package subscription

import (
	"context"
	"log/slog"
	"strings"

	"reelpipe/internal/jobs"
	"reelpipe/internal/logging"
	"reelpipe/internal/services"
)

// inactiveFailureCount is the number of consecutive payment failures that
// deactivates a subscription.
const inactiveFailureCount = 3

// Outcome is the result of one billing attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// ParseOutcome converts a string into a known Outcome.
func ParseOutcome(value string) (Outcome, bool) {
	switch Outcome(strings.ToLower(strings.TrimSpace(value))) {
	case OutcomeSuccess:
		return OutcomeSuccess, true
	case OutcomeFailure:
		return OutcomeFailure, true
	default:
		return "", false
	}
}

// Enqueuer creates access sync jobs. The access sync orchestrator satisfies
// it; tests substitute a recorder.
type Enqueuer interface {
	Enqueue(ctx context.Context, subscriberID string) (*jobs.Job, error)
}

// Result describes the state change one billing event produced.
type Result struct {
	Subscriber *jobs.Subscriber
	Previous   jobs.SubscriptionStatus
	SyncJob    *jobs.Job
}

// Machine applies billing events and schedules access syncs on entitlement
// changes.
type Machine struct {
	store    *jobs.Store
	enqueuer Enqueuer
	logger   *slog.Logger
}

// NewMachine wires a billing state machine.
func NewMachine(store *jobs.Store, enqueuer Enqueuer, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Machine{
		store:    store,
		enqueuer: enqueuer,
		logger:   logger.With(logging.String(logging.FieldComponent, "subscription")),
	}
}

// ApplyBillingEvent transitions a subscriber's state for one billing outcome
// and persists it. A transition into or out of active enqueues exactly one
// access sync job; every other transition enqueues nothing.
//
// A subscriber first seen through a billing event starts from inactive with
// no recorded failures.
func (m *Machine) ApplyBillingEvent(ctx context.Context, subscriberID string, outcome Outcome) (*Result, error) {
	if strings.TrimSpace(subscriberID) == "" {
		return nil, services.Wrap(services.ErrValidation, "subscription", "billing event", "subscriber id is required", nil)
	}

	subscriber, err := m.store.GetSubscriber(ctx, subscriberID)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "subscription", "billing event", "load subscriber", err)
	}
	if subscriber == nil {
		subscriber = &jobs.Subscriber{ID: subscriberID, Status: jobs.SubscriptionInactive}
	}
	previous := subscriber.Status

	switch outcome {
	case OutcomeSuccess:
		subscriber.Status = jobs.SubscriptionActive
		subscriber.PaymentFailureCount = 0
	case OutcomeFailure:
		subscriber.PaymentFailureCount++
		if subscriber.PaymentFailureCount >= inactiveFailureCount {
			subscriber.Status = jobs.SubscriptionInactive
		} else {
			subscriber.Status = jobs.SubscriptionPastDue
		}
	default:
		return nil, services.Wrap(services.ErrValidation, "subscription", "billing event", "unknown outcome "+string(outcome), nil)
	}

	if err := m.store.SaveSubscriber(ctx, subscriber); err != nil {
		return nil, services.Wrap(services.ErrExternalService, "subscription", "billing event", "save subscriber", err)
	}

	result := &Result{Subscriber: subscriber, Previous: previous}
	logger := m.logger.With(
		logging.String(logging.FieldSubscriberID, subscriberID),
		logging.String("from", string(previous)),
		logging.String("to", string(subscriber.Status)),
	)

	if crossedActiveBoundary(previous, subscriber.Status) {
		job, err := m.enqueuer.Enqueue(ctx, subscriberID)
		if err != nil {
			return nil, services.Wrap(services.ErrExternalService, "subscription", "billing event", "enqueue access sync", err)
		}
		result.SyncJob = job
		logger.Info("entitlement changed, sync scheduled", logging.String(logging.FieldJobID, job.ID))
	} else {
		logger.Debug("billing event applied")
	}
	return result, nil
}

// crossedActiveBoundary reports whether the transition changes whether the
// subscriber is entitled to watch.
func crossedActiveBoundary(from, to jobs.SubscriptionStatus) bool {
	return (from == jobs.SubscriptionActive) != (to == jobs.SubscriptionActive)
}
