package audit

import (
	"fmt"

	"github.com/ppiankov/toolgate/internal/signing"
)

// Finding kinds.
const (
	FindingMalformed = "malformed"
	FindingSequence  = "sequence"
	FindingSignature = "signature"
	FindingMissing   = "missing"
)

// Finding describes where and how the chain broke.
type Finding struct {
	Position int    `json:"position"`
	ID       uint64 `json:"id"`
	Kind     string `json:"kind"`
	Detail   string `json:"detail"`
}

// IntegrityReport is the outcome of a chain verification. It is in one
// of three states:
//
//   - intact: Valid, TamperedCount 0, Error empty.
//   - tampered: TamperedCount > 0. Once the chain breaks, every later
//     entry is unverifiable and counted as tampered.
//   - unverified: Error set, TamperedCount 0. The signer or the store was
//     unavailable, so nothing was checked and nothing is known to be altered.
//
// Valid holds iff TamperedCount is 0 and Error is empty.
type IntegrityReport struct {
	Valid           bool      `json:"valid"`
	TamperedCount   int       `json:"tampered_count"`
	Entries         int       `json:"entries"`
	FirstTamperedID uint64    `json:"first_tampered_id,omitempty"`
	Findings        []Finding `json:"findings,omitempty"`
	// Error is set when verification could not run at all.
	Error string `json:"error,omitempty"`
}

// Unverified reports whether verification could not run.
func (r IntegrityReport) Unverified() bool {
	return r.Error != ""
}

// VerifyRecords recomputes the signature chain from genesis.
// It never panics on malformed input.
func VerifyRecords(records []Record, signer signing.Signer) IntegrityReport {
	report := IntegrityReport{Entries: len(records)}
	if signer == nil {
		report.Error = signing.ErrSigningUnavailable.Error()
		return report
	}
	if _, err := signer.Sign(nil); err != nil {
		report.Error = err.Error()
		return report
	}

	prev := GenesisSignature
	broken := false
	for i, rec := range records {
		pos := i + 1
		expected := uint64(pos)
		if broken {
			report.TamperedCount++
			continue
		}

		var f *Finding
		switch {
		case rec.Err != nil:
			f = &Finding{Position: pos, ID: expected, Kind: FindingMalformed, Detail: rec.Err.Error()}
		case rec.Entry.ID != expected:
			f = &Finding{Position: pos, ID: expected, Kind: FindingSequence,
				Detail: fmt.Sprintf("expected id %d, found %d", expected, rec.Entry.ID)}
		default:
			input, err := SigningInput(rec.Entry, prev)
			if err != nil {
				f = &Finding{Position: pos, ID: expected, Kind: FindingMalformed, Detail: err.Error()}
			} else if !signing.Verify(signer, input, rec.Entry.Signature) {
				f = &Finding{Position: pos, ID: expected, Kind: FindingSignature, Detail: "signature does not match content and chain"}
			}
		}

		if f != nil {
			broken = true
			report.TamperedCount++
			report.FirstTamperedID = f.ID
			report.Findings = append(report.Findings, *f)
			continue
		}
		prev = rec.Entry.Signature
	}

	report.Valid = !broken
	return report
}

// VerifyFile verifies a JSONL ledger file offline.
func VerifyFile(path string, signer signing.Signer) IntegrityReport {
	records, err := ReadFile(path)
	if err != nil {
		return IntegrityReport{Entries: len(records), Error: err.Error()}
	}
	return VerifyRecords(records, signer)
}
