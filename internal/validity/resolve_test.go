package validity

import (
	"testing"
	"time"

	"github.com/TimurManjosov/cclengine/internal/certificate"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var dose2 = time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

func vaccination(product string, dn, sd int) certificate.Certificate {
	return certificate.Certificate{
		Kind: certificate.KindVaccination,
		Vaccination: &certificate.Vaccination{
			DoseNumber:     dn,
			TotalDoses:     sd,
			MedicalProduct: product,
			Date:           dose2,
		},
	}
}

func TestResolve_Vaccination(t *testing.T) {
	tests := []struct {
		name         string
		cert         certificate.Certificate
		wantComplete bool
		wantBooster  bool
		wantFrom     time.Time
		wantBoostAt  time.Time
	}{
		{
			name:         "two-dose series complete",
			cert:         vaccination("EU/1/20/1528", 2, 2),
			wantComplete: true,
			wantFrom:     dose2.Add(21 * day),
			wantBoostAt:  dose2.Add(90 * day),
		},
		{
			name: "first of two doses",
			cert: vaccination("EU/1/20/1507", 1, 2),
		},
		{
			name:         "single dose after recovery",
			cert:         vaccination("EU/1/21/1529", 1, 1),
			wantComplete: true,
			wantFrom:     dose2,
			wantBoostAt:  dose2.Add(90 * day),
		},
		{
			name:         "booster after two doses",
			cert:         vaccination("EU/1/20/1528", 3, 3),
			wantComplete: true,
			wantBooster:  true,
			wantFrom:     dose2,
		},
		{
			name:         "single-dose product",
			cert:         vaccination("EU/1/20/1525", 1, 1),
			wantComplete: true,
			wantFrom:     dose2.Add(28 * day),
			wantBoostAt:  dose2.Add(28 * day),
		},
		{
			name:         "booster after single-dose product",
			cert:         vaccination("EU/1/20/1525", 2, 1),
			wantComplete: true,
			wantBooster:  true,
			wantFrom:     dose2,
		},
		{
			name:         "unknown product uses default row",
			cert:         vaccination("EU/1/99/0000", 2, 2),
			wantComplete: true,
			wantFrom:     dose2.Add(21 * day),
			wantBoostAt:  dose2.Add(90 * day),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := DefaultTable.Resolve(tt.cert)
			if res.Complete != tt.wantComplete || res.Booster != tt.wantBooster {
				t.Fatalf("complete/booster = %v/%v, want %v/%v", res.Complete, res.Booster, tt.wantComplete, tt.wantBooster)
			}
			if res.HasWindow != tt.wantComplete {
				t.Fatalf("HasWindow = %v, want %v", res.HasWindow, tt.wantComplete)
			}
			if !res.Window.From.Equal(tt.wantFrom) {
				t.Fatalf("From = %v, want %v", res.Window.From, tt.wantFrom)
			}
			if !res.RecommendedBooster.Equal(tt.wantBoostAt) {
				t.Fatalf("RecommendedBooster = %v, want %v", res.RecommendedBooster, tt.wantBoostAt)
			}
		})
	}
}

func TestResolve_TwoDosePendingThenValid(t *testing.T) {
	res := DefaultTable.Resolve(vaccination("EU/1/20/1528", 2, 2))

	at20 := dose2.Add(20 * day)
	if res.TimeValid(at20) || !res.Pending(at20) {
		t.Fatalf("at dose2+20d: valid=%v pending=%v, want pending", res.TimeValid(at20), res.Pending(at20))
	}
	at36 := dose2.Add(36 * day)
	if !res.TimeValid(at36) || res.Pending(at36) {
		t.Fatalf("at dose2+36d: valid=%v pending=%v, want valid", res.TimeValid(at36), res.Pending(at36))
	}
}

func TestResolve_Recovery(t *testing.T) {
	fr := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	res := DefaultTable.Resolve(certificate.Certificate{
		Kind:     certificate.KindRecovery,
		Recovery: &certificate.Recovery{FirstPositive: fr},
	})
	if !res.Window.From.Equal(fr.Add(28*day)) || !res.Window.Until.Equal(fr.Add(180*day)) {
		t.Fatalf("derived window = %+v", res.Window)
	}

	df := fr.Add(10 * day)
	du := fr.Add(100 * day)
	res = DefaultTable.Resolve(certificate.Certificate{
		Kind:     certificate.KindRecovery,
		Recovery: &certificate.Recovery{FirstPositive: fr, ValidFrom: df, ValidUntil: du},
	})
	if !res.Window.From.Equal(df) || !res.Window.Until.Equal(du) {
		t.Fatalf("explicit window = %+v", res.Window)
	}
}

func TestResolve_Tests(t *testing.T) {
	sc := time.Date(2021, 9, 1, 8, 0, 0, 0, time.UTC)
	test := func(tt, result string) certificate.Certificate {
		return certificate.Certificate{
			Kind: certificate.KindTest,
			Test: &certificate.Test{TestType: tt, SampleCollection: sc, Result: result},
		}
	}

	pcr := DefaultTable.Resolve(test("LP6464-4", certificate.ResultNotDetected))
	if pcr.TestKind != TestPCR || !pcr.Window.Until.Equal(sc.Add(48*time.Hour)) {
		t.Fatalf("PCR resolution = %+v", pcr)
	}
	rat := DefaultTable.Resolve(test("LP217198-3", certificate.ResultNotDetected))
	if rat.TestKind != TestRAT || !rat.Window.Until.Equal(sc.Add(24*time.Hour)) {
		t.Fatalf("RAT resolution = %+v", rat)
	}
	if pos := DefaultTable.Resolve(test("LP6464-4", certificate.ResultDetected)); pos.TimeValid(sc) {
		t.Fatal("positive test must never be time valid")
	}
	if unknown := DefaultTable.Resolve(test("XX-1", certificate.ResultNotDetected)); unknown.HasWindow {
		t.Fatal("unknown test type must have no window")
	}
}

func TestWindow_HalfOpenLaw(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	base := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("valid at From, invalid at Until", prop.ForAll(
		func(startOffset, length int64) bool {
			from := base.Add(time.Duration(startOffset) * time.Second)
			w := Window{From: from, Until: from.Add(time.Duration(length) * time.Second)}
			return w.Contains(w.From) && !w.Contains(w.Until)
		},
		gen.Int64Range(-1_000_000, 1_000_000),
		gen.Int64Range(1, 10_000_000),
	))

	properties.Property("invalid just before From", prop.ForAll(
		func(startOffset, length int64) bool {
			from := base.Add(time.Duration(startOffset) * time.Second)
			w := Window{From: from, Until: from.Add(time.Duration(length) * time.Second)}
			return !w.Contains(from.Add(-time.Nanosecond))
		},
		gen.Int64Range(-1_000_000, 1_000_000),
		gen.Int64Range(1, 10_000_000),
	))

	properties.Property("recovery valid at validFrom, not at validUntil", prop.ForAll(
		func(days int) bool {
			fr := base.AddDate(0, 0, days)
			res := DefaultTable.Resolve(certificate.Certificate{
				Kind:     certificate.KindRecovery,
				Recovery: &certificate.Recovery{FirstPositive: fr},
			})
			return res.TimeValid(res.Window.From) && !res.TimeValid(res.Window.Until)
		},
		gen.IntRange(0, 1000),
	))

	properties.TestingRun(t)
}
