package wallet

import (
	"fmt"
	"time"

	"github.com/TimurManjosov/cclengine/internal/booster"
	"github.com/TimurManjosov/cclengine/internal/certificate"
	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/TimurManjosov/cclengine/internal/validity"
)

// Resolved is a certificate with its time boundaries evaluated at one
// instant. It is the element type descriptors see when they iterate over
// a holder's certificates.
type Resolved struct {
	Index         int
	BarcodeData   string
	Kind          certificate.Kind
	ValidityState certificate.ValidityState

	Eligible  bool
	TimeValid bool
	Pending   bool
	Complete  bool
	Booster   bool
	TestKind  validity.TestKind

	BoosterDue  bool
	BoosterRule string

	QualifyingDate     time.Time
	IssuedAt           time.Time
	ValidFrom          time.Time
	ValidUntil         time.Time
	RecommendedBooster time.Time

	DoseNumber     int
	TotalDoses     int
	MedicalProduct string
}

// Usable reports whether r currently counts for admission.
func (r Resolved) Usable() bool {
	return r.Eligible && r.TimeValid
}

func instantOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// Value converts r into the evaluator's value form.
func (r Resolved) Value() map[string]any {
	return map[string]any{
		"index":                  float64(r.Index),
		"barcodeData":            r.BarcodeData,
		"kind":                   string(r.Kind),
		"validityState":          string(r.ValidityState),
		"eligible":               r.Eligible,
		"timeValid":              r.TimeValid,
		"pending":                r.Pending,
		"complete":               r.Complete,
		"booster":                r.Booster,
		"testKind":               string(r.TestKind),
		"boosterDue":             r.BoosterDue,
		"boosterRule":            r.BoosterRule,
		"qualifyingDate":         instantOrNil(r.QualifyingDate),
		"issuedAt":               instantOrNil(r.IssuedAt),
		"validFrom":              instantOrNil(r.ValidFrom),
		"validUntil":             instantOrNil(r.ValidUntil),
		"recommendedBoosterDate": instantOrNil(r.RecommendedBooster),
		"doseNumber":             float64(r.DoseNumber),
		"totalDoses":             float64(r.TotalDoses),
		"medicalProduct":         r.MedicalProduct,
	}
}

// resolvedFromValue is the inverse of Value.
func resolvedFromValue(v any) (Resolved, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Resolved{}, fmt.Errorf("resolved certificate must be an object, got %T", v)
	}
	str := func(k string) string { s, _ := m[k].(string); return s }
	flag := func(k string) bool { b, _ := m[k].(bool); return b }
	num := func(k string) int { f, _ := m[k].(float64); return int(f) }
	instant := func(k string) time.Time { t, _ := jfn.AsInstant(m[k]); return t }

	if str("barcodeData") == "" {
		return Resolved{}, fmt.Errorf("resolved certificate without barcodeData")
	}
	return Resolved{
		Index:              num("index"),
		BarcodeData:        str("barcodeData"),
		Kind:               certificate.Kind(str("kind")),
		ValidityState:      certificate.ValidityState(str("validityState")),
		Eligible:           flag("eligible"),
		TimeValid:          flag("timeValid"),
		Pending:            flag("pending"),
		Complete:           flag("complete"),
		Booster:            flag("booster"),
		TestKind:           validity.TestKind(str("testKind")),
		BoosterDue:         flag("boosterDue"),
		BoosterRule:        str("boosterRule"),
		QualifyingDate:     instant("qualifyingDate"),
		IssuedAt:           instant("issuedAt"),
		ValidFrom:          instant("validFrom"),
		ValidUntil:         instant("validUntil"),
		RecommendedBooster: instant("recommendedBoosterDate"),
		DoseNumber:         num("doseNumber"),
		TotalDoses:         num("totalDoses"),
		MedicalProduct:     str("medicalProduct"),
	}, nil
}

func resolvedListFromValue(v any) ([]Resolved, error) {
	if v == nil {
		return nil, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("certificates must be a list, got %T", v)
	}
	out := make([]Resolved, 0, len(list))
	for i, item := range list {
		r, err := resolvedFromValue(item)
		if err != nil {
			return nil, fmt.Errorf("certificates[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Resolver evaluates certificates against a validity table.
type Resolver struct {
	Table *validity.Table
}

// Resolve computes the boundaries of every certificate at now and marks
// a booster as due on the most recent vaccination when rules (or, without
// rules, the recommended booster date) say so. Input order is preserved.
func (rv Resolver) Resolve(now time.Time, certs []certificate.Certificate, rules []booster.Rule) ([]Resolved, error) {
	table := rv.Table
	if table == nil {
		table = &validity.DefaultTable
	}
	now = now.UTC()

	out := make([]Resolved, len(certs))
	for i, c := range certs {
		res := table.Resolve(c)
		r := Resolved{
			Index:              c.Index,
			BarcodeData:        c.BarcodeData,
			Kind:               c.Kind,
			ValidityState:      c.ValidityState,
			Eligible:           c.Eligible(),
			TimeValid:          res.TimeValid(now),
			Pending:            res.Pending(now),
			Complete:           res.Complete,
			Booster:            res.Booster,
			TestKind:           res.TestKind,
			QualifyingDate:     c.QualifyingDate(),
			IssuedAt:           c.IssuedAt,
			ValidFrom:          res.Window.From,
			ValidUntil:         res.Window.Until,
			RecommendedBooster: res.RecommendedBooster,
		}
		if !res.HasWindow {
			r.ValidFrom, r.ValidUntil = time.Time{}, time.Time{}
		}
		if v := c.Vaccination; v != nil {
			r.DoseNumber, r.TotalDoses, r.MedicalProduct = v.DoseNumber, v.TotalDoses, v.MedicalProduct
		}
		out[i] = r
	}

	latest, ok := SelectMostRecentVaccination(out)
	if !ok || !latest.Complete {
		return out, nil
	}
	pos := positionOf(out, latest.Index)
	if len(rules) > 0 {
		ext := booster.NewExternal(now, latest.QualifyingDate, latest.DoseNumber, latest.TotalDoses)
		result, err := booster.Evaluate(rules, certs[pos].Payload, ext, now)
		if err != nil {
			return nil, err
		}
		out[pos].BoosterDue, out[pos].BoosterRule = result.Due, result.Identifier
		return out, nil
	}
	if !latest.Booster && !latest.RecommendedBooster.IsZero() && !now.Before(latest.RecommendedBooster) {
		out[pos].BoosterDue = true
	}
	return out, nil
}

func positionOf(certs []Resolved, index int) int {
	for i, c := range certs {
		if c.Index == index {
			return i
		}
	}
	return -1
}
