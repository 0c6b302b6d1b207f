package prep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quickbite/backend/internal/model"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingAlerter struct {
	mu     sync.Mutex
	pulses int
	err    error
}

func (a *recordingAlerter) Pulse(string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pulses++
	return a.err
}

func (a *recordingAlerter) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pulses
}

type stubNotifier struct {
	err     error
	order   *model.Order
	reason  string
	minutes int
	calls   int
}

func (n *stubNotifier) SubmitDelayNotice(_ context.Context, _, reason string, additionalMinutes int) (*model.Order, error) {
	n.calls++
	n.reason = reason
	n.minutes = additionalMinutes
	if n.err != nil {
		return nil, n.err
	}
	return n.order, nil
}

func preparingOrder(id string, updatedAt time.Time, prepMinutes int) model.Order {
	return model.Order{
		ID:                 id,
		Status:             model.StatusPreparing,
		PreparationMinutes: prepMinutes,
		Version:            1,
		UpdatedAt:          updatedAt,
	}
}

func newTestEngine(clock *fakeClock, alerter Alerter, notifier Notifier) *Engine {
	return NewEngine(Config{
		Now:      clock.Now,
		Alerter:  alerter,
		Notifier: notifier,
	})
}

func TestQuietOutsideAlertWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	alerter := &recordingAlerter{}
	engine := newTestEngine(clock, alerter, nil)

	// 20 minute estimate, 10 minutes elapsed: 600s remaining.
	engine.Observe(preparingOrder("o1", clock.Now().Add(-10*time.Minute), 20))

	state, ok := engine.State("o1")
	if !ok {
		t.Fatal("expected timer for preparing order")
	}
	if state.RemainingSeconds != 600 {
		t.Fatalf("expected 600s remaining, got %d", state.RemainingSeconds)
	}
	if state.AlertPhase != PhaseQuiet {
		t.Fatalf("expected quiet above the alert window, got %s", state.AlertPhase)
	}
	if alerter.Count() != 0 {
		t.Fatalf("expected no pulses while quiet, got %d", alerter.Count())
	}
}

func TestAlertingInsideLastFiveMinutes(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	alerter := &recordingAlerter{}
	engine := newTestEngine(clock, alerter, nil)

	// 20 minute estimate, 19 minutes elapsed: about 60s remaining.
	engine.Observe(preparingOrder("o1", clock.Now().Add(-19*time.Minute), 20))

	state, _ := engine.State("o1")
	if state.RemainingSeconds != 60 {
		t.Fatalf("expected 60s remaining, got %d", state.RemainingSeconds)
	}
	if state.AlertPhase != PhaseAlerting {
		t.Fatalf("expected alerting, got %s", state.AlertPhase)
	}
	if alerter.Count() != 1 {
		t.Fatalf("expected first pulse on entering alerting, got %d", alerter.Count())
	}

	// Pulses repeat every 10 seconds, not every tick.
	clock.Advance(time.Second)
	engine.Tick()
	if alerter.Count() != 1 {
		t.Fatalf("expected no pulse after 1s, got %d", alerter.Count())
	}
	clock.Advance(9 * time.Second)
	engine.Tick()
	if alerter.Count() != 2 {
		t.Fatalf("expected second pulse after 10s, got %d", alerter.Count())
	}
}

func TestOverdueStopsPeriodicAudio(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	alerter := &recordingAlerter{}
	engine := newTestEngine(clock, alerter, nil)

	// 20 minute estimate, 25 minutes elapsed: overdue.
	engine.Observe(preparingOrder("o1", clock.Now().Add(-25*time.Minute), 20))

	state, _ := engine.State("o1")
	if state.RemainingSeconds >= 0 {
		t.Fatalf("expected negative remaining, got %d", state.RemainingSeconds)
	}
	if state.AlertPhase != PhaseOverdue {
		t.Fatalf("expected overdue, got %s", state.AlertPhase)
	}

	pulses := alerter.Count()
	for i := 0; i < 30; i++ {
		clock.Advance(time.Second)
		engine.Tick()
	}
	if alerter.Count() != pulses {
		t.Fatalf("expected no audio while overdue, got %d extra pulses", alerter.Count()-pulses)
	}
}

func TestAlertingCrossesIntoOverdue(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	engine := newTestEngine(clock, &recordingAlerter{}, nil)

	engine.Observe(preparingOrder("o1", clock.Now().Add(-19*time.Minute), 20))

	clock.Advance(59 * time.Second)
	engine.Tick()
	state, _ := engine.State("o1")
	if state.AlertPhase != PhaseAlerting || state.RemainingSeconds != 1 {
		t.Fatalf("expected alerting with 1s left, got %s/%d", state.AlertPhase, state.RemainingSeconds)
	}

	clock.Advance(time.Second)
	engine.Tick()
	state, _ = engine.State("o1")
	if state.AlertPhase != PhaseOverdue || state.RemainingSeconds != 0 {
		t.Fatalf("expected overdue at 0s, got %s/%d", state.AlertPhase, state.RemainingSeconds)
	}
}

func TestStatusChangeDestroysTimer(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	alerter := &recordingAlerter{}
	engine := newTestEngine(clock, alerter, nil)

	order := preparingOrder("o1", clock.Now().Add(-19*time.Minute), 20)
	engine.Observe(order)
	if _, ok := engine.State("o1"); !ok {
		t.Fatal("expected timer while preparing")
	}

	order.Status = model.StatusReady
	engine.Observe(order)
	if _, ok := engine.State("o1"); ok {
		t.Fatal("expected timer destroyed once order left preparing")
	}

	pulses := alerter.Count()
	for i := 0; i < 60; i++ {
		clock.Advance(time.Second)
		engine.Tick()
	}
	if alerter.Count() != pulses {
		t.Fatalf("expected no audio after timer destroyed, got %d extra pulses", alerter.Count()-pulses)
	}
}

func TestTimerResetsWhenEstimateChanges(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	engine := newTestEngine(clock, &recordingAlerter{}, nil)

	order := preparingOrder("o1", clock.Now().Add(-19*time.Minute), 20)
	engine.Observe(order)
	state, _ := engine.State("o1")
	if state.AlertPhase != PhaseAlerting {
		t.Fatalf("expected alerting before reset, got %s", state.AlertPhase)
	}

	// Delay notice added 15 minutes; the estimate change resets the timer.
	order.PreparationMinutes = 35
	order.Version++
	engine.Observe(order)
	state, _ = engine.State("o1")
	if state.RemainingSeconds != 16*60 {
		t.Fatalf("expected 960s after extension, got %d", state.RemainingSeconds)
	}
	if state.AlertPhase != PhaseQuiet {
		t.Fatalf("expected quiet after extension, got %s", state.AlertPhase)
	}
}

func TestSnooze(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	alerter := &recordingAlerter{}
	engine := newTestEngine(clock, alerter, nil)

	engine.Observe(preparingOrder("o1", clock.Now().Add(-16*time.Minute), 20))
	state, _ := engine.State("o1")
	if state.AlertPhase != PhaseAlerting {
		t.Fatalf("expected alerting, got %s", state.AlertPhase)
	}

	engine.Snooze("o1")
	state, _ = engine.State("o1")
	if state.AlertPhase != PhaseSnoozed {
		t.Fatalf("expected snoozed, got %s", state.AlertPhase)
	}
	if state.SnoozeCount != 1 {
		t.Fatalf("expected snooze count 1, got %d", state.SnoozeCount)
	}

	// Snoozing again while snoozed does not double count.
	engine.Snooze("o1")
	state, _ = engine.State("o1")
	if state.SnoozeCount != 1 {
		t.Fatalf("expected snooze count to stay 1, got %d", state.SnoozeCount)
	}

	// Silent for the whole cool-down.
	pulses := alerter.Count()
	for i := 0; i < 119; i++ {
		clock.Advance(time.Second)
		engine.Tick()
	}
	if alerter.Count() != pulses {
		t.Fatalf("expected silence during snooze, got %d extra pulses", alerter.Count()-pulses)
	}

	// Cool-down over, still inside the window: alerting resumes.
	clock.Advance(time.Second)
	engine.Tick()
	state, _ = engine.State("o1")
	if state.AlertPhase != PhaseAlerting {
		t.Fatalf("expected alerting after cool-down, got %s", state.AlertPhase)
	}
	if alerter.Count() != pulses+1 {
		t.Fatalf("expected pulse on resume, got %d", alerter.Count()-pulses)
	}
}

func TestSnoozeIgnoredOutsideAlerting(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	engine := newTestEngine(clock, &recordingAlerter{}, nil)

	engine.Observe(preparingOrder("o1", clock.Now().Add(-10*time.Minute), 20))
	engine.Snooze("o1")
	state, _ := engine.State("o1")
	if state.AlertPhase != PhaseQuiet || state.SnoozeCount != 0 {
		t.Fatalf("expected snooze ignored while quiet, got %s/%d", state.AlertPhase, state.SnoozeCount)
	}

	engine.Snooze("missing")
}

func TestAudioFailureDoesNotStopVisualAlert(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	alerter := &recordingAlerter{err: errors.New("audio context blocked")}
	engine := newTestEngine(clock, alerter, nil)

	engine.Observe(preparingOrder("o1", clock.Now().Add(-19*time.Minute), 20))
	state, _ := engine.State("o1")
	if state.AlertPhase != PhaseAlerting {
		t.Fatalf("expected alerting despite audio failure, got %s", state.AlertPhase)
	}
}

func TestDefaultPreparationMinutes(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	engine := newTestEngine(clock, &recordingAlerter{}, nil)

	// Missing estimate falls back to 20 minutes.
	engine.Observe(preparingOrder("o1", clock.Now(), 0))
	state, _ := engine.State("o1")
	if state.RemainingSeconds != 20*60 {
		t.Fatalf("expected 1200s with default estimate, got %d", state.RemainingSeconds)
	}
}

func TestSendDelayNoticeValidation(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &stubNotifier{}
	engine := newTestEngine(clock, &recordingAlerter{}, notifier)
	engine.Observe(preparingOrder("o1", clock.Now().Add(-25*time.Minute), 20))

	if err := engine.SendDelayNotice(context.Background(), "o1", "  ", 10); !errors.Is(err, ErrReasonRequired) {
		t.Fatalf("expected ErrReasonRequired, got %v", err)
	}
	if err := engine.SendDelayNotice(context.Background(), "o1", "busy", 70); !errors.Is(err, ErrAdditionalMinutesRange) {
		t.Fatalf("expected ErrAdditionalMinutesRange, got %v", err)
	}
	if err := engine.SendDelayNotice(context.Background(), "missing", "busy", 10); !errors.Is(err, ErrNotTracked) {
		t.Fatalf("expected ErrNotTracked, got %v", err)
	}
	if notifier.calls != 0 {
		t.Fatalf("expected no submissions for invalid input, got %d", notifier.calls)
	}
}

func TestSendDelayNoticeSuccess(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	anchor := clock.Now().Add(-25 * time.Minute)

	reason := "Kitchen is backed up"
	updated := preparingOrder("o1", anchor, 35)
	updated.DelayReason = &reason
	updated.Version = 2

	notifier := &stubNotifier{order: &updated}
	engine := newTestEngine(clock, &recordingAlerter{}, notifier)
	engine.Observe(preparingOrder("o1", anchor, 20))

	if err := engine.SendDelayNotice(context.Background(), "o1", reason, 15); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifier.reason != reason || notifier.minutes != 15 {
		t.Fatalf("unexpected submission: %q/%d", notifier.reason, notifier.minutes)
	}

	state, _ := engine.State("o1")
	if !state.NoticeSent {
		t.Fatal("expected notice marked sent")
	}
	// The extended estimate moved the deadline back out of overdue.
	if state.RemainingSeconds != 10*60 {
		t.Fatalf("expected 600s after extension, got %d", state.RemainingSeconds)
	}

	if err := engine.SendDelayNotice(context.Background(), "o1", reason, 5); !errors.Is(err, ErrNoticeAlreadySent) {
		t.Fatalf("expected ErrNoticeAlreadySent, got %v", err)
	}
}

func TestSendDelayNoticeFailureKeepsAffordance(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &stubNotifier{err: errors.New("network down")}
	engine := newTestEngine(clock, &recordingAlerter{}, notifier)
	engine.Observe(preparingOrder("o1", clock.Now().Add(-25*time.Minute), 20))

	if err := engine.SendDelayNotice(context.Background(), "o1", "busy", 10); err == nil {
		t.Fatal("expected submission error")
	}

	state, _ := engine.State("o1")
	if state.NoticeSent {
		t.Fatal("expected affordance to stay armed after failure")
	}

	// Manual retry succeeds.
	notifier.err = nil
	if err := engine.SendDelayNotice(context.Background(), "o1", "busy", 10); err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	state, _ = engine.State("o1")
	if !state.NoticeSent {
		t.Fatal("expected notice marked sent after retry")
	}
}

func TestFormatRemaining(t *testing.T) {
	cases := []struct {
		seconds int
		want    string
	}{
		{600, "10:00"},
		{61, "1:01"},
		{9, "0:09"},
		{0, "OVERDUE!"},
		{-42, "OVERDUE!"},
	}
	for _, tc := range cases {
		if got := FormatRemaining(tc.seconds); got != tc.want {
			t.Fatalf("FormatRemaining(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}
