package subscription

import (
	"context"
	"testing"

	"reelpipe/internal/jobs"
	"reelpipe/internal/testsupport"
)

type recordingEnqueuer struct {
	subscribers []string
}

func (r *recordingEnqueuer) Enqueue(_ context.Context, subscriberID string) (*jobs.Job, error) {
	r.subscribers = append(r.subscribers, subscriberID)
	return &jobs.Job{ID: "sync-job", AssetID: subscriberID, Kind: jobs.KindAccessSync}, nil
}

func newTestMachine(t *testing.T) (*Machine, *recordingEnqueuer, *jobs.Store) {
	t.Helper()
	store := testsupport.MustOpenStore(t)
	enqueuer := &recordingEnqueuer{}
	return NewMachine(store, enqueuer, nil), enqueuer, store
}

func applyEvents(t *testing.T, machine *Machine, subscriberID string, outcomes ...Outcome) *Result {
	t.Helper()
	var result *Result
	for _, outcome := range outcomes {
		var err error
		result, err = machine.ApplyBillingEvent(context.Background(), subscriberID, outcome)
		if err != nil {
			t.Fatalf("apply %s: %v", outcome, err)
		}
	}
	return result
}

func TestPaymentSuccessActivates(t *testing.T) {
	machine, enqueuer, _ := newTestMachine(t)

	result := applyEvents(t, machine, "sub-1", OutcomeSuccess)

	if result.Subscriber.Status != jobs.SubscriptionActive {
		t.Fatalf("expected active, got %s", result.Subscriber.Status)
	}
	if result.Subscriber.PaymentFailureCount != 0 {
		t.Errorf("expected zero failures, got %d", result.Subscriber.PaymentFailureCount)
	}
	if result.SyncJob == nil {
		t.Fatal("activation must schedule a sync")
	}
	if len(enqueuer.subscribers) != 1 {
		t.Fatalf("expected exactly one sync, got %d", len(enqueuer.subscribers))
	}
}

func TestFailureProgressionToInactive(t *testing.T) {
	machine, enqueuer, _ := newTestMachine(t)

	result := applyEvents(t, machine, "sub-1", OutcomeSuccess)
	if result.Subscriber.Status != jobs.SubscriptionActive {
		t.Fatalf("setup: expected active, got %s", result.Subscriber.Status)
	}

	steps := []struct {
		outcome  Outcome
		status   jobs.SubscriptionStatus
		failures int
		sync     bool
	}{
		{OutcomeFailure, jobs.SubscriptionPastDue, 1, true},
		{OutcomeFailure, jobs.SubscriptionPastDue, 2, false},
		{OutcomeFailure, jobs.SubscriptionInactive, 3, false},
	}
	for i, step := range steps {
		result := applyEvents(t, machine, "sub-1", step.outcome)
		if result.Subscriber.Status != step.status {
			t.Fatalf("step %d: expected %s, got %s", i, step.status, result.Subscriber.Status)
		}
		if result.Subscriber.PaymentFailureCount != step.failures {
			t.Errorf("step %d: expected %d failures, got %d", i, step.failures, result.Subscriber.PaymentFailureCount)
		}
		if (result.SyncJob != nil) != step.sync {
			t.Errorf("step %d: sync scheduled = %v, expected %v", i, result.SyncJob != nil, step.sync)
		}
	}

	// One sync for activation, one for leaving active. Past_due to inactive
	// never crosses the entitlement boundary.
	if len(enqueuer.subscribers) != 2 {
		t.Fatalf("expected 2 syncs total, got %d", len(enqueuer.subscribers))
	}
}

func TestSuccessAfterFailuresResets(t *testing.T) {
	machine, enqueuer, store := newTestMachine(t)

	applyEvents(t, machine, "sub-1", OutcomeSuccess, OutcomeFailure, OutcomeFailure)
	result := applyEvents(t, machine, "sub-1", OutcomeSuccess)

	if result.Subscriber.Status != jobs.SubscriptionActive {
		t.Fatalf("expected active, got %s", result.Subscriber.Status)
	}
	if result.Subscriber.PaymentFailureCount != 0 {
		t.Errorf("expected failure count reset, got %d", result.Subscriber.PaymentFailureCount)
	}
	if result.SyncJob == nil {
		t.Fatal("reactivation must schedule a sync")
	}
	// Activation, first failure (leaves active), reactivation.
	if len(enqueuer.subscribers) != 3 {
		t.Fatalf("expected 3 syncs total, got %d", len(enqueuer.subscribers))
	}

	persisted, err := store.GetSubscriber(context.Background(), "sub-1")
	if err != nil {
		t.Fatalf("get subscriber: %v", err)
	}
	if persisted.Status != jobs.SubscriptionActive || persisted.PaymentFailureCount != 0 {
		t.Fatalf("persisted state mismatch: %+v", persisted)
	}
}

func TestUnknownSubscriberStartsInactive(t *testing.T) {
	machine, enqueuer, _ := newTestMachine(t)

	result := applyEvents(t, machine, "new-sub", OutcomeFailure)

	if result.Previous != jobs.SubscriptionInactive {
		t.Fatalf("expected inactive baseline, got %s", result.Previous)
	}
	if result.Subscriber.Status != jobs.SubscriptionPastDue {
		t.Fatalf("expected past_due, got %s", result.Subscriber.Status)
	}
	if result.SyncJob != nil || len(enqueuer.subscribers) != 0 {
		t.Fatal("inactive to past_due must not schedule a sync")
	}
}

func TestRepeatedSuccessSchedulesOneSync(t *testing.T) {
	machine, enqueuer, _ := newTestMachine(t)

	applyEvents(t, machine, "sub-1", OutcomeSuccess, OutcomeSuccess, OutcomeSuccess)

	if len(enqueuer.subscribers) != 1 {
		t.Fatalf("expected a single sync for the initial activation, got %d", len(enqueuer.subscribers))
	}
}

func TestParseOutcome(t *testing.T) {
	for _, tc := range []struct {
		in    string
		want  Outcome
		valid bool
	}{
		{"success", OutcomeSuccess, true},
		{" Failure ", OutcomeFailure, true},
		{"chargeback", "", false},
		{"", "", false},
	} {
		got, ok := ParseOutcome(tc.in)
		if ok != tc.valid || got != tc.want {
			t.Errorf("ParseOutcome(%q) = (%q, %v), expected (%q, %v)", tc.in, got, ok, tc.want, tc.valid)
		}
	}
}
