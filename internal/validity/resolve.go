package validity

import (
	"time"

	"github.com/TimurManjosov/cclengine/internal/certificate"
)

// Window is the half-open interval [From, Until). A zero Until leaves the
// window open-ended.
type Window struct {
	From  time.Time
	Until time.Time
}

// Contains uses >= on the lower and < on the upper bound.
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.From) {
		return false
	}
	return w.Until.IsZero() || t.Before(w.Until)
}

// Resolution holds the named time boundaries of one certificate.
type Resolution struct {
	Window Window
	// HasWindow is false when the certificate can never be admission
	// valid (incomplete series, positive or unknown test).
	HasWindow bool

	Complete bool
	Booster  bool
	TestKind TestKind

	// RecommendedBooster is zero unless the certificate completes a
	// primary series.
	RecommendedBooster time.Time
}

// TimeValid reports whether now falls inside the certificate's window.
func (r Resolution) TimeValid(now time.Time) bool {
	return r.HasWindow && r.Window.Contains(now)
}

// Pending reports a window that has not started yet.
func (r Resolution) Pending(now time.Time) bool {
	return r.HasWindow && now.Before(r.Window.From)
}

// Resolve computes the boundaries of c. It ignores the validity state;
// callers combine it with certificate.Certificate.Eligible.
func (t *Table) Resolve(c certificate.Certificate) Resolution {
	switch {
	case c.Vaccination != nil:
		return t.resolveVaccination(*c.Vaccination)
	case c.Recovery != nil:
		return t.resolveRecovery(*c.Recovery)
	case c.Test != nil:
		return t.resolveTest(*c.Test)
	}
	return Resolution{}
}

func (t *Table) resolveVaccination(v certificate.Vaccination) Resolution {
	rule := t.Product(v.MedicalProduct)
	res := Resolution{
		Complete: v.TotalDoses > 0 && v.DoseNumber >= v.TotalDoses,
		Booster:  v.DoseNumber > rule.RequiredDoses || (v.TotalDoses > 0 && v.DoseNumber > v.TotalDoses),
	}
	if !res.Complete {
		return res
	}
	res.HasWindow = true

	// A single dose after recovery completes a two-dose product at once.
	recovered := v.DoseNumber == 1 && v.TotalDoses == 1 && rule.RequiredDoses > 1
	switch {
	case res.Booster, recovered:
		res.Window.From = v.Date
	default:
		res.Window.From = v.Date.Add(rule.MinimumInterval)
	}
	if !res.Booster {
		res.RecommendedBooster = v.Date.Add(rule.BoosterInterval)
	}
	return res
}

func (t *Table) resolveRecovery(r certificate.Recovery) Resolution {
	w := Window{
		From:  r.FirstPositive.Add(t.RecoveryValidFrom),
		Until: r.FirstPositive.Add(t.RecoveryValidUntil),
	}
	if !r.ValidFrom.IsZero() {
		w.From = r.ValidFrom
	}
	if !r.ValidUntil.IsZero() {
		w.Until = r.ValidUntil
	}
	return Resolution{Window: w, HasWindow: true}
}

func (t *Table) resolveTest(tr certificate.Test) Resolution {
	rule, ok := t.Test(tr.TestType)
	if !ok {
		return Resolution{}
	}
	res := Resolution{TestKind: rule.Kind}
	if tr.Result == certificate.ResultDetected {
		return res
	}
	res.HasWindow = true
	res.Window = Window{From: tr.SampleCollection, Until: tr.SampleCollection.Add(rule.Validity)}
	return res
}
