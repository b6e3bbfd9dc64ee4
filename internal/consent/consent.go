// Package consent tracks per-phone legal permission to message.
package consent

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusPending  Status = "pending"
	StatusOptedIn  Status = "opted_in"
	StatusOptedOut Status = "opted_out"
)

type Type string

const (
	TypeMarketing     Type = "marketing"
	TypeTransactional Type = "transactional"
	TypeAll           Type = "all"
)

type Source string

const (
	SourceWebForm Source = "web_form"
	SourceSMS     Source = "sms"
	SourceAPI     Source = "api"
	SourceImport  Source = "import"
	SourceUnknown Source = "unknown"
)

type VerificationMethod string

const (
	VerificationDoubleOptIn VerificationMethod = "double_opt_in"
	VerificationSingleOptIn VerificationMethod = "single_opt_in"
	VerificationImplied     VerificationMethod = "implied"
	VerificationNone        VerificationMethod = "none"
)

type LegalBasis string

const (
	BasisConsent            LegalBasis = "consent"
	BasisLegitimateInterest LegalBasis = "legitimate_interest"
	BasisContract           LegalBasis = "contract"
)

// DefaultValidity is how long an opt-in remains usable for marketing when
// the record carries no explicit expiry.
const DefaultValidity = 18 // months

// MetadataExpiresKey, when present in a record's metadata, overrides the
// default validity window. RFC 3339 instant.
const MetadataExpiresKey = "expires_at"

// AuditEntry is one step of a record's append-only history.
type AuditEntry struct {
	Action    string            `json:"action"`
	Source    Source            `json:"source"`
	Context   map[string]string `json:"context,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Record is the legal permission state for one (phone, type) pair. It is
// never physically deleted; every accepted status change bumps Version by
// exactly one and appends one audit entry.
type Record struct {
	PhoneNumber        string             `json:"phoneNumber"`
	Region             string             `json:"region,omitempty"`
	Status             Status             `json:"status"`
	Source             Source             `json:"source"`
	Type               Type               `json:"type"`
	VerificationMethod VerificationMethod `json:"verificationMethod,omitempty"`
	LegalBasis         LegalBasis         `json:"legalBasis,omitempty"`
	OptInDate          *time.Time         `json:"optInDate,omitempty"`
	OptOutDate         *time.Time         `json:"optOutDate,omitempty"`
	Version            int                `json:"version"`
	AuditTrail         []AuditEntry       `json:"auditTrail,omitempty"`
	Metadata           map[string]string  `json:"metadata,omitempty"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// transitions: unknown is reachable only as the initial state.
var transitions = map[Status][]Status{
	StatusUnknown:  {StatusPending, StatusOptedIn, StatusOptedOut},
	StatusPending:  {StatusOptedIn, StatusOptedOut},
	StatusOptedIn:  {StatusOptedOut},
	StatusOptedOut: {StatusOptedIn},
}

func IsValidTransition(from, to Status) bool {
	for _, dst := range transitions[from] {
		if dst == to {
			return true
		}
	}
	return false
}

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid consent transition %s -> %s", e.From, e.To)
}

// NewAuditEntry stamps the current time.
func NewAuditEntry(action string, source Source, context map[string]string) AuditEntry {
	return AuditEntry{Action: action, Source: source, Context: context, Timestamp: time.Now().UTC()}
}

// Apply moves a record to a new status. Opt-in clears any stale opt-out date
// so the date-ordering invariant (optOutDate strictly after optInDate) holds
// for re-opt-ins.
func Apply(r Record, to Status, source Source, context map[string]string, now time.Time) (Record, error) {
	if !IsValidTransition(r.Status, to) {
		return r, &InvalidTransitionError{From: r.Status, To: to}
	}
	from := r.Status
	r.Status = to
	switch to {
	case StatusOptedIn:
		t := now
		r.OptInDate = &t
		r.OptOutDate = nil
	case StatusOptedOut:
		t := now
		r.OptOutDate = &t
	}
	r.Version++
	r.UpdatedAt = now
	entry := NewAuditEntry(fmt.Sprintf("%s->%s", from, to), source, context)
	entry.Timestamp = now
	r.AuditTrail = append(r.AuditTrail, entry)
	return r, nil
}

// IsExpired reports whether an opt-in has lapsed. An explicit expiry in
// metadata wins; otherwise the default validity window applies. A nil
// optInDate is never expired — absent consent is a different failure mode.
func IsExpired(optInDate *time.Time, metadata map[string]string) bool {
	if optInDate == nil {
		return false
	}
	if raw, ok := metadata[MetadataExpiresKey]; ok {
		if expires, err := time.Parse(time.RFC3339, raw); err == nil {
			return !time.Now().Before(expires)
		}
	}
	return time.Now().After(optInDate.AddDate(0, DefaultValidity, 0))
}

// AllowsMarketing gates marketing sends on an active, unexpired opt-in.
// Expiry here is date-only; callers needing metadata-aware expiry check
// IsExpired with the record's metadata separately.
func AllowsMarketing(status Status, typ Type, optInDate *time.Time) bool {
	if status != StatusOptedIn {
		return false
	}
	if typ != TypeMarketing && typ != TypeAll {
		return false
	}
	return !IsExpired(optInDate, nil)
}

// AllowsTransactional gates transactional sends. No expiry check applies
// under the governing legal basis.
func AllowsTransactional(status Status, typ Type) bool {
	return status == StatusOptedIn && (typ == TypeTransactional || typ == TypeAll)
}
