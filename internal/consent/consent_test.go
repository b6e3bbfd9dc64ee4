package consent

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func ptr(t time.Time) *time.Time { return &t }

func TestTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusUnknown, StatusPending, true},
		{StatusUnknown, StatusOptedIn, true},
		{StatusUnknown, StatusOptedOut, true},
		{StatusPending, StatusOptedIn, true},
		{StatusPending, StatusOptedOut, true},
		{StatusOptedIn, StatusOptedOut, true},
		{StatusOptedOut, StatusOptedIn, true},
		{StatusOptedIn, StatusUnknown, false},
		{StatusOptedOut, StatusUnknown, false},
		{StatusPending, StatusUnknown, false},
		{StatusOptedIn, StatusPending, false},
	}
	for _, tc := range cases {
		if got := IsValidTransition(tc.from, tc.to); got != tc.ok {
			t.Fatalf("IsValidTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
	for _, s := range []Status{StatusUnknown, StatusPending, StatusOptedIn, StatusOptedOut} {
		if IsValidTransition(s, s) {
			t.Fatalf("self transition allowed for %s", s)
		}
	}
}

func TestApplyBumpsVersionAndAppendsAudit(t *testing.T) {
	now := time.Now().UTC()
	r := Record{
		PhoneNumber: "+15551234567",
		Status:      StatusUnknown,
		Source:      SourceAPI,
		Type:        TypeMarketing,
		Version:     1,
	}

	r2, err := Apply(r, StatusOptedIn, SourceWebForm, map[string]string{"campaign": "c1"}, now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if r2.Version != 2 {
		t.Fatalf("expected version 2, got %d", r2.Version)
	}
	if r2.OptInDate == nil || !r2.OptInDate.Equal(now) {
		t.Fatalf("expected opt-in date stamped")
	}
	if len(r2.AuditTrail) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(r2.AuditTrail))
	}
	if r2.AuditTrail[0].Action != "unknown->opted_in" {
		t.Fatalf("unexpected audit action %q", r2.AuditTrail[0].Action)
	}

	// Opt out, then opt back in: the stale opt-out date must be cleared so
	// the ordering invariant still holds.
	r3, err := Apply(r2, StatusOptedOut, SourceSMS, nil, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Apply opt-out: %v", err)
	}
	if r3.OptOutDate == nil {
		t.Fatalf("expected opt-out date stamped")
	}
	r4, err := Apply(r3, StatusOptedIn, SourceSMS, nil, now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("Apply re-opt-in: %v", err)
	}
	if r4.OptOutDate != nil {
		t.Fatalf("expected opt-out date cleared on re-opt-in")
	}
	if r4.Version != 4 {
		t.Fatalf("expected version 4, got %d", r4.Version)
	}
}

func TestApplyRejectsInvalidTransition(t *testing.T) {
	r := Record{Status: StatusOptedIn}
	_, err := Apply(r, StatusUnknown, SourceAPI, nil, time.Now())
	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestIsExpired(t *testing.T) {
	if IsExpired(nil, nil) {
		t.Fatalf("nil opt-in date must never be expired")
	}

	old := time.Now().AddDate(0, -20, 0)
	if !IsExpired(&old, nil) {
		t.Fatalf("20-month-old opt-in should be expired")
	}

	recent := time.Now().AddDate(0, -6, 0)
	if IsExpired(&recent, nil) {
		t.Fatalf("6-month-old opt-in should not be expired")
	}

	// Explicit metadata expiry wins over the default window.
	meta := map[string]string{MetadataExpiresKey: time.Now().Add(-time.Hour).Format(time.RFC3339)}
	if !IsExpired(&recent, meta) {
		t.Fatalf("explicit past expiry should report expired")
	}
	meta[MetadataExpiresKey] = time.Now().Add(time.Hour).Format(time.RFC3339)
	if IsExpired(&old, meta) {
		t.Fatalf("explicit future expiry should report not expired")
	}
}

func TestAllowances(t *testing.T) {
	recent := ptr(time.Now().AddDate(0, -6, 0))
	stale := ptr(time.Now().AddDate(0, -20, 0))

	if !AllowsMarketing(StatusOptedIn, TypeMarketing, recent) {
		t.Fatalf("fresh marketing opt-in should allow marketing")
	}
	if !AllowsMarketing(StatusOptedIn, TypeAll, recent) {
		t.Fatalf("type all should allow marketing")
	}
	if AllowsMarketing(StatusOptedIn, TypeTransactional, recent) {
		t.Fatalf("transactional-only consent must not allow marketing")
	}
	if AllowsMarketing(StatusOptedOut, TypeMarketing, recent) {
		t.Fatalf("opted-out must not allow marketing")
	}
	if AllowsMarketing(StatusOptedIn, TypeMarketing, stale) {
		t.Fatalf("expired opt-in must not allow marketing")
	}

	if !AllowsTransactional(StatusOptedIn, TypeTransactional) {
		t.Fatalf("transactional opt-in should allow transactional")
	}
	if !AllowsTransactional(StatusOptedIn, TypeAll) {
		t.Fatalf("type all should allow transactional")
	}
	// No expiry gate on transactional: type all with a stale date is still
	// checked through AllowsTransactional's two arguments only.
	if AllowsTransactional(StatusPending, TypeAll) {
		t.Fatalf("pending must not allow transactional")
	}
	if AllowsTransactional(StatusOptedIn, TypeMarketing) {
		t.Fatalf("marketing-only consent must not allow transactional")
	}
}

func TestValidateRecord(t *testing.T) {
	now := time.Now().UTC()
	base := Record{
		PhoneNumber:        "+15551234567",
		Status:             StatusOptedIn,
		Source:             SourceWebForm,
		Type:               TypeMarketing,
		VerificationMethod: VerificationDoubleOptIn,
		LegalBasis:         BasisConsent,
		OptInDate:          ptr(now.AddDate(0, -1, 0)),
		Version:            1,
		CreatedAt:          now.AddDate(0, -1, 0),
		UpdatedAt:          now,
	}

	if res := ValidateRecord(base); !res.Valid {
		t.Fatalf("expected valid record, errors: %v", res.Errors)
	}

	t.Run("bad phone", func(t *testing.T) {
		r := base
		r.PhoneNumber = "nope"
		res := ValidateRecord(r)
		if res.Valid || !containsSub(res.Errors, "phone number format is invalid") {
			t.Fatalf("expected phone format error, got %v", res.Errors)
		}
	})

	t.Run("opted_in without opt-in date", func(t *testing.T) {
		r := base
		r.OptInDate = nil
		res := ValidateRecord(r)
		if res.Valid || !containsSub(res.Errors, "requires an opt-in date") {
			t.Fatalf("expected date-consistency error, got %v", res.Errors)
		}
	})

	t.Run("opt-out before opt-in", func(t *testing.T) {
		r := base
		r.Status = StatusOptedOut
		r.OptOutDate = ptr(now.AddDate(0, -2, 0))
		res := ValidateRecord(r)
		if res.Valid || !containsSub(res.Errors, "opt-out date must be after opt-in date") {
			t.Fatalf("expected ordering error, got %v", res.Errors)
		}
	})

	t.Run("pending with dates", func(t *testing.T) {
		r := base
		r.Status = StatusPending
		res := ValidateRecord(r)
		if res.Valid || !containsSub(res.Errors, "pending status requires both dates unset") {
			t.Fatalf("expected pending error, got %v", res.Errors)
		}
	})

	t.Run("future date", func(t *testing.T) {
		r := base
		r.OptInDate = ptr(now.Add(48 * time.Hour))
		res := ValidateRecord(r)
		if res.Valid || !containsSub(res.Errors, "in the future") {
			t.Fatalf("expected future-date error, got %v", res.Errors)
		}
	})

	t.Run("bad enum", func(t *testing.T) {
		r := base
		r.Type = Type("carrier_pigeon")
		res := ValidateRecord(r)
		if res.Valid || !containsSub(res.Errors, "unknown consent type") {
			t.Fatalf("expected enum error, got %v", res.Errors)
		}
	})

	t.Run("warnings are non-fatal", func(t *testing.T) {
		r := base
		r.VerificationMethod = ""
		r.Source = SourceUnknown
		res := ValidateRecord(r)
		if !res.Valid {
			t.Fatalf("warnings must not fail validation, errors: %v", res.Errors)
		}
		if !containsSub(res.Warnings, "no verification method") || !containsSub(res.Warnings, "source is unknown") {
			t.Fatalf("expected warnings, got %v", res.Warnings)
		}
	})
}

func containsSub(list []string, sub string) bool {
	for _, s := range list {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
