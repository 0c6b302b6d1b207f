// Package prep drives the preparation countdown for tracked orders:
// remaining time to the preparation deadline, escalating alert phases,
// snooze, and the delay-notice escape hatch.
package prep

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	"quickbite/backend/internal/model"
)

type AlertPhase string

const (
	PhaseQuiet    AlertPhase = "quiet"
	PhaseAlerting AlertPhase = "alerting"
	PhaseSnoozed  AlertPhase = "snoozed"
	PhaseOverdue  AlertPhase = "overdue"
)

const (
	// AlertWindowSeconds is the last stretch of the countdown during
	// which the engine escalates to an audible alert.
	AlertWindowSeconds = 300

	maxDelayReasonLength = 500
	maxAdditionalMinutes = 60

	audioPulseInterval = 10 * time.Second
	snoozeCooldown     = 2 * time.Minute
)

// SuggestedDelayReasons is the fixed pick list offered alongside the
// free-text delay reason.
var SuggestedDelayReasons = []string{
	"Kitchen is backed up",
	"Waiting on an ingredient delivery",
	"Large order ahead of yours",
	"Short staffed right now",
}

var (
	ErrNotTracked             = errors.New("order is not being tracked")
	ErrReasonRequired         = errors.New("delay reason is required")
	ErrReasonTooLong          = errors.New("delay reason is too long")
	ErrAdditionalMinutesRange = errors.New("additional minutes must be between 1 and 60")
	ErrNoticeAlreadySent      = errors.New("delay notice already sent for this preparation cycle")
)

// Alerter plays the audible pulse. Playback is best effort: a failure is
// logged and the visual alert carries on.
type Alerter interface {
	Pulse(orderID string) error
}

// Notifier submits a delay notice to the backend. The API client
// implements it; tests stub it.
type Notifier interface {
	SubmitDelayNotice(ctx context.Context, orderID, reason string, additionalMinutes int) (*model.Order, error)
}

type TimerState struct {
	RemainingSeconds int
	AlertPhase       AlertPhase
	SnoozeCount      int
	NoticeSent       bool
}

type timer struct {
	state       TimerState
	anchor      time.Time
	prepMinutes int
	deadline    time.Time
	lastPulse   time.Time
	snoozedAt   time.Time
}

type Config struct {
	Now      func() time.Time // defaults to time.Now
	Alerter  Alerter
	Notifier Notifier
	Logger   *log.Logger
	OnChange func(orderID string, state TimerState)
}

type Engine struct {
	now      func() time.Time
	alerter  Alerter
	notifier Notifier
	logger   *log.Logger
	onChange func(string, TimerState)

	mu     sync.Mutex
	timers map[string]*timer

	stopOnce sync.Once
	stop     chan struct{}
}

func NewEngine(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		now:      now,
		alerter:  cfg.Alerter,
		notifier: cfg.Notifier,
		logger:   logger,
		onChange: cfg.OnChange,
		timers:   make(map[string]*timer),
		stop:     make(chan struct{}),
	}
}

// Run ticks the engine once a second until the context is cancelled or
// Close is called.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			e.Tick()
		}
	}
}

// Close cancels all timers. No audio fires afterwards.
func (e *Engine) Close() {
	e.stopOnce.Do(func() { close(e.stop) })
	e.mu.Lock()
	e.timers = make(map[string]*timer)
	e.mu.Unlock()
}

// Observe feeds a snapshot into the engine. A timer exists only while the
// order is preparing; it is recreated whenever the countdown anchor or the
// preparation estimate changes, and destroyed on any other status.
func (e *Engine) Observe(order model.Order) {
	now := e.now()

	e.mu.Lock()
	if order.Status != model.StatusPreparing {
		delete(e.timers, order.ID)
		e.mu.Unlock()
		return
	}

	prep := order.EffectivePreparationMinutes()
	anchor := order.UpdatedAt
	t, ok := e.timers[order.ID]
	if !ok || !t.anchor.Equal(anchor) || t.prepMinutes != prep {
		t = &timer{
			state:       TimerState{AlertPhase: PhaseQuiet},
			anchor:      anchor,
			prepMinutes: prep,
			deadline:    anchor.Add(time.Duration(prep) * time.Minute),
		}
		e.timers[order.ID] = t
	}
	t.state.NoticeSent = order.DelayReason != nil

	pulse := e.recompute(t, now)
	state := t.state
	e.mu.Unlock()

	e.emit(order.ID, state, pulse)
}

// Tick recomputes every tracked countdown against the current clock.
func (e *Engine) Tick() {
	now := e.now()

	type emission struct {
		orderID string
		state   TimerState
		pulse   bool
	}

	e.mu.Lock()
	emissions := make([]emission, 0, len(e.timers))
	for orderID, t := range e.timers {
		pulse := e.recompute(t, now)
		emissions = append(emissions, emission{orderID: orderID, state: t.state, pulse: pulse})
	}
	e.mu.Unlock()

	for _, em := range emissions {
		e.emit(em.orderID, em.state, em.pulse)
	}
}

// recompute applies the phase rules and reports whether an audio pulse is
// due. Caller holds the lock.
func (e *Engine) recompute(t *timer, now time.Time) bool {
	t.state.RemainingSeconds = int(math.Floor(t.deadline.Sub(now).Seconds()))

	switch {
	case t.state.RemainingSeconds <= 0:
		// The recurring alert stops; the one-shot delay-notice
		// affordance takes over.
		t.state.AlertPhase = PhaseOverdue
		return false

	case t.state.RemainingSeconds <= AlertWindowSeconds:
		switch t.state.AlertPhase {
		case PhaseSnoozed:
			if now.Sub(t.snoozedAt) < snoozeCooldown {
				return false
			}
			t.state.AlertPhase = PhaseAlerting
		case PhaseAlerting:
		default:
			t.state.AlertPhase = PhaseAlerting
			t.lastPulse = time.Time{}
		}
		if t.lastPulse.IsZero() || now.Sub(t.lastPulse) >= audioPulseInterval {
			t.lastPulse = now
			return true
		}
		return false

	default:
		t.state.AlertPhase = PhaseQuiet
		return false
	}
}

func (e *Engine) emit(orderID string, state TimerState, pulse bool) {
	if pulse && e.alerter != nil {
		if err := e.alerter.Pulse(orderID); err != nil {
			e.logger.Printf("audio alert failed for order %s: %v", orderID, err)
		}
	}
	if e.onChange != nil {
		e.onChange(orderID, state)
	}
}

// Snooze silences an active alert. It only applies while alerting; calling
// it again while already snoozed has no further effect.
func (e *Engine) Snooze(orderID string) {
	now := e.now()

	e.mu.Lock()
	t, ok := e.timers[orderID]
	if !ok || t.state.AlertPhase != PhaseAlerting {
		e.mu.Unlock()
		return
	}
	t.state.AlertPhase = PhaseSnoozed
	t.state.SnoozeCount++
	t.snoozedAt = now
	state := t.state
	e.mu.Unlock()

	e.emit(orderID, state, false)
}

// SendDelayNotice validates and submits a delay notice for a tracked
// order. On failure the affordance stays armed; there is no automatic
// retry.
func (e *Engine) SendDelayNotice(ctx context.Context, orderID, reason string, additionalMinutes int) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrReasonRequired
	}
	if len(reason) > maxDelayReasonLength {
		return ErrReasonTooLong
	}
	if additionalMinutes != 0 && (additionalMinutes < 1 || additionalMinutes > maxAdditionalMinutes) {
		return ErrAdditionalMinutesRange
	}

	e.mu.Lock()
	t, ok := e.timers[orderID]
	if !ok {
		e.mu.Unlock()
		return ErrNotTracked
	}
	if t.state.NoticeSent {
		e.mu.Unlock()
		return ErrNoticeAlreadySent
	}
	e.mu.Unlock()

	if e.notifier == nil {
		return fmt.Errorf("prep: no notifier configured")
	}

	order, err := e.notifier.SubmitDelayNotice(ctx, orderID, reason, additionalMinutes)
	if err != nil {
		return fmt.Errorf("submit delay notice: %w", err)
	}

	e.mu.Lock()
	if t, ok := e.timers[orderID]; ok {
		t.state.NoticeSent = true
	}
	e.mu.Unlock()

	if order != nil {
		// The server extends the estimate; fold the fresh snapshot back in.
		e.Observe(*order)
	}
	return nil
}

// State returns the countdown state for an order, if it is tracked.
func (e *Engine) State(orderID string) (TimerState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.timers[orderID]
	if !ok {
		return TimerState{}, false
	}
	return t.state, true
}

// FormatRemaining renders a countdown as M:SS, or "OVERDUE!" once the
// deadline has passed.
func FormatRemaining(seconds int) string {
	if seconds <= 0 {
		return "OVERDUE!"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
