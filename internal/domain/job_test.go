package domain

import "testing"

func TestPriorityWeightsKeepHeadroom(t *testing.T) {
	order := []JobPriority{JobPriorityLow, JobPriorityNormal, JobPriorityHigh, JobPriorityUrgent}
	prev := 0
	for _, p := range order {
		w := p.Weight()
		if w <= prev {
			t.Fatalf("%s weight %d does not exceed previous %d", p, w, prev)
		}
		// Gaps leave room for intermediate tiers.
		if w-prev < 2 && prev != 0 {
			t.Fatalf("no headroom between weight %d and %d", prev, w)
		}
		prev = w
	}
}

func TestPriorityFromWeightRoundTrip(t *testing.T) {
	for _, p := range []JobPriority{JobPriorityLow, JobPriorityNormal, JobPriorityHigh, JobPriorityUrgent} {
		if got := PriorityFromWeight(p.Weight()); got != p {
			t.Fatalf("round trip for %s: got %s", p, got)
		}
	}
	if got := PriorityFromWeight(7); got != JobPriorityNormal {
		t.Fatalf("unknown weight must fall back to normal, got %s", got)
	}
}

func TestJobTypeValidation(t *testing.T) {
	for _, known := range KnownJobTypes {
		if !known.Valid() {
			t.Fatalf("%s must be valid", known)
		}
	}
	if JobType("hologram_generation").Valid() {
		t.Fatal("unknown type must be invalid")
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := map[JobStatus]bool{
		JobStatusPending:    false,
		JobStatusProcessing: false,
		JobStatusCompleted:  true,
		JobStatusFailed:     true,
		JobStatusCancelled:  true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Fatalf("%s: Terminal() = %v, want %v", status, got, want)
		}
	}
}
