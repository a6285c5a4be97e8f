package wallet

import (
	"math/rand"
	"testing"
	"time"

	"github.com/TimurManjosov/cclengine/internal/certificate"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func resolved(index int, kind certificate.Kind, date time.Time, mods ...func(*Resolved)) Resolved {
	r := Resolved{
		Index:          index,
		BarcodeData:    string(rune('A' + index)),
		Kind:           kind,
		ValidityState:  certificate.StateValid,
		Eligible:       true,
		TimeValid:      true,
		QualifyingDate: date,
	}
	if kind == certificate.KindVaccination {
		r.Complete = true
	}
	for _, m := range mods {
		m(&r)
	}
	return r
}

func notValid(r *Resolved)   { r.TimeValid = false }
func revoked(r *Resolved)    { r.Eligible, r.ValidityState = false, certificate.StateRevoked }
func partial(r *Resolved)    { r.Complete = false; r.TimeValid = false }
func boosterDue(r *Resolved) { r.BoosterDue = true }

func indexes(rs []Resolved) []int {
	out := make([]int, len(rs))
	for i, r := range rs {
		out[i] = r.Index
	}
	return out
}

func TestSelectMostRelevant(t *testing.T) {
	jan := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := jan.AddDate(0, 1, 0)

	tests := []struct {
		name  string
		certs []Resolved
		want  int
		none  bool
	}{
		{
			name: "recovery beats vaccination",
			certs: []Resolved{
				resolved(0, certificate.KindVaccination, feb),
				resolved(1, certificate.KindRecovery, jan),
			},
			want: 1,
		},
		{
			name: "booster due beats recovery",
			certs: []Resolved{
				resolved(0, certificate.KindRecovery, feb),
				resolved(1, certificate.KindVaccination, jan, boosterDue),
			},
			want: 1,
		},
		{
			name: "vaccination beats test",
			certs: []Resolved{
				resolved(0, certificate.KindTest, feb),
				resolved(1, certificate.KindVaccination, jan),
			},
			want: 1,
		},
		{
			name: "expired test loses to valid recovery",
			certs: []Resolved{
				resolved(0, certificate.KindTest, feb, notValid),
				resolved(1, certificate.KindRecovery, jan),
			},
			want: 1,
		},
		{
			name: "newest within class",
			certs: []Resolved{
				resolved(0, certificate.KindTest, jan),
				resolved(1, certificate.KindTest, feb),
			},
			want: 1,
		},
		{
			name: "tie keeps input order",
			certs: []Resolved{
				resolved(0, certificate.KindTest, jan),
				resolved(1, certificate.KindTest, jan),
			},
			want: 0,
		},
		{
			name: "fallback prefers latest issued",
			certs: []Resolved{
				resolved(0, certificate.KindVaccination, feb, partial, func(r *Resolved) { r.IssuedAt = feb }),
				resolved(1, certificate.KindTest, jan, notValid, func(r *Resolved) { r.IssuedAt = feb.AddDate(0, 0, 1) }),
			},
			want: 1,
		},
		{
			name: "revoked never selected",
			certs: []Resolved{
				resolved(0, certificate.KindRecovery, feb, revoked),
				resolved(1, certificate.KindTest, jan, notValid),
			},
			want: 1,
		},
		{
			name:  "nothing eligible",
			certs: []Resolved{resolved(0, certificate.KindRecovery, feb, revoked)},
			none:  true,
		},
		{name: "empty", none: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectMostRelevant(tt.certs)
			if tt.none {
				assert.False(t, ok)
				return
			}
			assert.True(t, ok)
			assert.Equal(t, tt.want, got.Index)
		})
	}
}

func TestSelectMostRecentVaccination(t *testing.T) {
	jan := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	certs := []Resolved{
		resolved(0, certificate.KindVaccination, jan),
		resolved(1, certificate.KindVaccination, jan.AddDate(0, 2, 0), revoked),
		resolved(2, certificate.KindVaccination, jan.AddDate(0, 1, 0), partial),
		resolved(3, certificate.KindRecovery, jan.AddDate(0, 3, 0)),
	}
	got, ok := SelectMostRecentVaccination(certs)
	assert.True(t, ok)
	assert.Equal(t, 2, got.Index, "completeness does not matter, revoked ones are skipped")

	_, ok = SelectMostRecentVaccination(certs[3:])
	assert.False(t, ok)
}

func TestVerificationEntries(t *testing.T) {
	jan := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	got := VerificationEntries([]Resolved{
		resolved(0, certificate.KindTest, jan, notValid),
		resolved(1, certificate.KindRecovery, jan),
		resolved(2, certificate.KindVaccination, jan, revoked),
	})
	assert.Equal(t, []VerificationEntry{
		{BarcodeData: "A", Verifiable: false, CertificateType: certificate.KindTest},
		{BarcodeData: "B", Verifiable: true, CertificateType: certificate.KindRecovery},
		{BarcodeData: "C", Verifiable: false, CertificateType: certificate.KindVaccination},
	}, got)
}

func randomWallet(seed int64) []Resolved {
	rnd := rand.New(rand.NewSource(seed))
	kinds := []certificate.Kind{certificate.KindVaccination, certificate.KindRecovery, certificate.KindTest}
	base := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	n := rnd.Intn(8)
	out := make([]Resolved, n)
	for i := range out {
		r := resolved(i, kinds[rnd.Intn(len(kinds))], base.AddDate(0, 0, rnd.Intn(5)))
		r.Eligible = rnd.Intn(4) != 0
		r.TimeValid = rnd.Intn(3) != 0
		r.Complete = r.Kind == certificate.KindVaccination && rnd.Intn(2) == 0
		r.BoosterDue = r.Complete && rnd.Intn(3) == 0
		if rnd.Intn(2) == 0 {
			r.IssuedAt = base.AddDate(0, 0, rnd.Intn(5))
		}
		out[i] = r
	}
	return out
}

func TestRank_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("ranking does not depend on input order", prop.ForAll(
		func(seed int64) bool {
			certs := randomWallet(seed)
			shuffled := append([]Resolved(nil), certs...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			a, b := indexes(Rank(certs)), indexes(Rank(shuffled))
			if len(a) != len(b) {
				return false
			}
			for i := range a {
				if a[i] != b[i] {
					return false
				}
			}
			return true
		},
		gen.Int64Range(0, 1<<40),
	))

	properties.Property("only eligible certificates are ranked", prop.ForAll(
		func(seed int64) bool {
			eligible := 0
			certs := randomWallet(seed)
			for _, c := range certs {
				if c.Eligible {
					eligible++
				}
			}
			ranked := Rank(certs)
			for _, r := range ranked {
				if !r.Eligible {
					return false
				}
			}
			return len(ranked) == eligible
		},
		gen.Int64Range(0, 1<<40),
	))

	properties.Property("selection is the best priority class", prop.ForAll(
		func(seed int64) bool {
			certs := randomWallet(seed)
			best, ok := SelectMostRelevant(certs)
			if !ok {
				return len(Rank(certs)) == 0
			}
			for _, c := range certs {
				if c.Eligible && priority(c) < priority(best) {
					return false
				}
			}
			return true
		},
		gen.Int64Range(0, 1<<40),
	))

	properties.TestingRun(t)
}
