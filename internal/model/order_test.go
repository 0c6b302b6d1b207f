package model

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StatusPlaced, StatusPreparing, true},
		{StatusPlaced, StatusCompleted, true},
		{StatusPreparing, StatusReady, true},
		{StatusPreparing, StatusPlaced, false},
		{StatusReady, StatusPreparing, false},
		{StatusPreparing, StatusCancelled, true},
		{StatusCompleted, StatusPreparing, false},
		{StatusCancelled, StatusPlaced, false},
		{StatusPreparing, "teleported", false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestEffectivePreparationMinutes(t *testing.T) {
	order := Order{PreparationMinutes: 0}
	if got := order.EffectivePreparationMinutes(); got != DefaultPreparationMinutes {
		t.Fatalf("expected default, got %d", got)
	}
	order.PreparationMinutes = 35
	if got := order.EffectivePreparationMinutes(); got != 35 {
		t.Fatalf("expected 35, got %d", got)
	}
}

func TestPreparationDeadline(t *testing.T) {
	anchor := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	order := Order{Status: StatusPreparing, PreparationMinutes: 20, UpdatedAt: anchor}
	want := anchor.Add(20 * time.Minute)
	if got := order.PreparationDeadline(); !got.Equal(want) {
		t.Fatalf("deadline = %v, want %v", got, want)
	}
}
