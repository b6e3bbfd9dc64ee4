package consent

import (
	"time"

	"smsgate/internal/util"
)

// ValidationResult carries fatal errors and non-fatal warnings separately.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

var validStatuses = map[Status]bool{
	StatusUnknown: true, StatusPending: true, StatusOptedIn: true, StatusOptedOut: true,
}

var validTypes = map[Type]bool{
	TypeMarketing: true, TypeTransactional: true, TypeAll: true,
}

var validSources = map[Source]bool{
	SourceWebForm: true, SourceSMS: true, SourceAPI: true, SourceImport: true, SourceUnknown: true,
}

var validVerifications = map[VerificationMethod]bool{
	"": true, VerificationDoubleOptIn: true, VerificationSingleOptIn: true,
	VerificationImplied: true, VerificationNone: true,
}

var validBases = map[LegalBasis]bool{
	"": true, BasisConsent: true, BasisLegitimateInterest: true, BasisContract: true,
}

// ValidateRecord checks structural validity, enum membership, and the
// status/date consistency invariants.
func ValidateRecord(r Record) ValidationResult {
	var res ValidationResult
	now := time.Now()

	if !util.IsValidPhone(r.PhoneNumber, r.Region) {
		res.Errors = append(res.Errors, "phone number format is invalid")
	}

	if !validStatuses[r.Status] {
		res.Errors = append(res.Errors, "unknown status: "+string(r.Status))
	}
	if !validTypes[r.Type] {
		res.Errors = append(res.Errors, "unknown consent type: "+string(r.Type))
	}
	if !validSources[r.Source] {
		res.Errors = append(res.Errors, "unknown source: "+string(r.Source))
	}
	if !validVerifications[r.VerificationMethod] {
		res.Errors = append(res.Errors, "unknown verification method: "+string(r.VerificationMethod))
	}
	if !validBases[r.LegalBasis] {
		res.Errors = append(res.Errors, "unknown legal basis: "+string(r.LegalBasis))
	}

	switch r.Status {
	case StatusOptedIn:
		if r.OptInDate == nil {
			res.Errors = append(res.Errors, "opted_in status requires an opt-in date")
		}
	case StatusOptedOut:
		if r.OptOutDate == nil {
			res.Errors = append(res.Errors, "opted_out status requires an opt-out date")
		}
	case StatusPending:
		if r.OptInDate != nil || r.OptOutDate != nil {
			res.Errors = append(res.Errors, "pending status requires both dates unset")
		}
	}

	if r.OptInDate != nil && r.OptOutDate != nil && !r.OptOutDate.After(*r.OptInDate) {
		res.Errors = append(res.Errors, "opt-out date must be after opt-in date")
	}
	if r.OptInDate != nil && r.OptInDate.After(now) {
		res.Errors = append(res.Errors, "opt-in date is in the future")
	}
	if r.OptOutDate != nil && r.OptOutDate.After(now) {
		res.Errors = append(res.Errors, "opt-out date is in the future")
	}
	if !r.CreatedAt.IsZero() && !r.UpdatedAt.IsZero() && r.UpdatedAt.Before(r.CreatedAt) {
		res.Errors = append(res.Errors, "updatedAt is before createdAt")
	}

	if r.Status == StatusOptedIn && (r.Type == TypeMarketing || r.Type == TypeAll) {
		if r.VerificationMethod == "" || r.VerificationMethod == VerificationNone {
			res.Warnings = append(res.Warnings, "marketing opt-in has no verification method")
		}
		if r.OptInDate == nil {
			res.Warnings = append(res.Warnings, "marketing opt-in has no opt-in date")
		}
	}
	if r.Source == SourceUnknown {
		res.Warnings = append(res.Warnings, "consent source is unknown")
	}

	res.Valid = len(res.Errors) == 0
	return res
}
