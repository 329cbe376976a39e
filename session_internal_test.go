package serial

import (
	"context"
	"errors"
	"testing"
)

func TestSettleKeepsHandedOverBytes(t *testing.T) {
	s := NewSession()
	pending := make(chan []byte, 1)
	s.pending = pending

	// the driver handed bytes over just as the context was cancelled
	pending <- []byte("late")

	data, err := s.settle(pending, context.Canceled)
	if err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
	if string(data) != "late" {
		t.Errorf("Expected late, got %q", data)
	}
	if s.pending != nil {
		t.Errorf("Expected the reader to be withdrawn")
	}
}

func TestSettleWithoutBytes(t *testing.T) {
	s := NewSession()
	pending := make(chan []byte, 1)
	s.pending = pending

	data, err := s.settle(pending, ErrNoDataAvailable)
	if !errors.Is(err, ErrNoDataAvailable) {
		t.Errorf("Expected ErrNoDataAvailable, got %v", err)
	}
	if data != nil {
		t.Errorf("Expected no data, got %q", data)
	}
}

func TestSettleLeavesNewerReader(t *testing.T) {
	s := NewSession()
	stale := make(chan []byte, 1)
	current := make(chan []byte, 1)
	s.pending = current

	s.settle(stale, context.Canceled)
	if s.pending != current {
		t.Errorf("Expected the current reader to stay registered")
	}
}
