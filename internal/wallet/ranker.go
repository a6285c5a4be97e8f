package wallet

import (
	"sort"
	"time"

	"github.com/TimurManjosov/cclengine/internal/certificate"
)

// Priority classes of the selection policy, best first. A certificate
// that is not eligible has no class.
const (
	priorityNone = iota
	priorityBoosterDue
	priorityRecovery
	priorityCompleteVaccination
	priorityTest
	priorityAnyValid
)

func priority(r Resolved) int {
	if !r.Eligible {
		return priorityNone
	}
	usable := r.TimeValid
	switch {
	case usable && r.Kind == certificate.KindVaccination && r.Complete && r.BoosterDue:
		return priorityBoosterDue
	case usable && r.Kind == certificate.KindRecovery:
		return priorityRecovery
	case usable && r.Kind == certificate.KindVaccination && r.Complete:
		return priorityCompleteVaccination
	case usable && r.Kind == certificate.KindTest:
		return priorityTest
	default:
		return priorityAnyValid
	}
}

// tieDate orders certificates within one priority class. The fallback
// class prefers the most recently issued certificate.
func tieDate(r Resolved, class int) time.Time {
	if class == priorityAnyValid && !r.IssuedAt.IsZero() {
		return r.IssuedAt
	}
	return r.QualifyingDate
}

// Rank returns the eligible certificates in selection order: by priority
// class, then most recent qualifying date, then input order.
func Rank(certs []Resolved) []Resolved {
	ranked := make([]Resolved, 0, len(certs))
	for _, c := range certs {
		if priority(c) != priorityNone {
			ranked = append(ranked, c)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := priority(ranked[i]), priority(ranked[j])
		if pi != pj {
			return pi < pj
		}
		di, dj := tieDate(ranked[i], pi), tieDate(ranked[j], pj)
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return ranked[i].Index < ranked[j].Index
	})
	return ranked
}

// SelectMostRelevant picks the certificate to foreground. ok is false when
// no certificate is eligible.
func SelectMostRelevant(certs []Resolved) (Resolved, bool) {
	ranked := Rank(certs)
	if len(ranked) == 0 {
		return Resolved{}, false
	}
	return ranked[0], true
}

// SelectMostRecentVaccination picks the eligible vaccination with the
// latest dose date regardless of series completeness. Ties keep the
// earlier input position.
func SelectMostRecentVaccination(certs []Resolved) (Resolved, bool) {
	var (
		best  Resolved
		found bool
	)
	for _, c := range certs {
		if c.Kind != certificate.KindVaccination || !c.Eligible {
			continue
		}
		if !found || c.QualifyingDate.After(best.QualifyingDate) {
			best, found = c, true
		}
	}
	return best, found
}

// VerificationEntry describes one certificate for the verification view.
type VerificationEntry struct {
	BarcodeData     string
	Verifiable      bool
	CertificateType certificate.Kind
}

// VerificationEntries lists every certificate in input order.
func VerificationEntries(certs []Resolved) []VerificationEntry {
	out := make([]VerificationEntry, len(certs))
	for i, c := range certs {
		out[i] = VerificationEntry{
			BarcodeData:     c.BarcodeData,
			Verifiable:      c.Usable(),
			CertificateType: c.Kind,
		}
	}
	return out
}
