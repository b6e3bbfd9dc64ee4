package ratelimit

import (
	"testing"
	"time"
)

func TestKeyForIsDeterministicAndCollisionFree(t *testing.T) {
	if KeyFor("t1", "sms", WindowMinute) != KeyFor("t1", "sms", WindowMinute) {
		t.Fatalf("expected stable keys")
	}

	seen := map[string]bool{}
	for _, tenant := range []string{"t1", "t2"} {
		for _, mt := range []string{"sms", "mms"} {
			for _, w := range Windows {
				k := KeyFor(tenant, mt, w)
				if seen[k] {
					t.Fatalf("key collision: %s", k)
				}
				seen[k] = true
			}
		}
	}
}

func TestWindowSeconds(t *testing.T) {
	cases := map[Window]int{
		WindowMinute: 60,
		WindowHour:   3600,
		WindowDay:    86400,
	}
	for w, want := range cases {
		if got := WindowSeconds(w); got != want {
			t.Fatalf("WindowSeconds(%s) = %d, want %d", w, got, want)
		}
		if got := WindowDuration(w); got != time.Duration(want)*time.Second {
			t.Fatalf("WindowDuration(%s) = %v", w, got)
		}
	}
}

func TestLimitsForFallbacks(t *testing.T) {
	calc := DefaultCalculator()

	free := calc.LimitsFor("sms", TierFree)
	if free.Minute != 5 {
		t.Fatalf("expected free sms minute limit 5, got %d", free.Minute)
	}
	paid := calc.LimitsFor("sms", TierPaid)
	if paid.Minute <= free.Minute {
		t.Fatalf("expected paid minute limit above free")
	}

	// Unknown message type falls back to the sms row, unknown tier to free.
	if calc.LimitsFor("fax", TierFree) != free {
		t.Fatalf("unknown message type should fall back to sms")
	}
	if calc.LimitsFor("sms", Tier("enterprise")) != free {
		t.Fatalf("unknown tier should fall back to free")
	}
}
