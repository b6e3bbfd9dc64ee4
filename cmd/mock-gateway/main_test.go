package main

import "testing"

func TestNextOutcomeRoundRobinAdvancesOnRejections(t *testing.T) {
	s := &server{
		cfg:      config{OutcomeMode: "round_robin"},
		outcomes: []string{"failed", "ok", "server_error"},
	}

	// The rotation must advance past non-ok outcomes instead of sticking on
	// the first rejection.
	want := []string{"failed", "ok", "server_error", "failed", "ok"}
	for i, w := range want {
		if got := s.nextOutcome(); got != w {
			t.Fatalf("call %d: expected %q, got %q", i, w, got)
		}
	}
}

func TestNextOutcomeFixedMode(t *testing.T) {
	s := &server{
		cfg:      config{OutcomeMode: "fixed"},
		outcomes: []string{"rate_limit", "ok"},
	}
	for i := 0; i < 3; i++ {
		if got := s.nextOutcome(); got != "rate_limit" {
			t.Fatalf("call %d: expected fixed outcome, got %q", i, got)
		}
	}
}
