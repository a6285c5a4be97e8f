package certificate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func input(entry string, fields map[string]any) map[string]any {
	return map[string]any{
		"barcodeData": "HC1:" + entry,
		"cwt":         map[string]any{"iss": "DE", "iat": 1.6431e9},
		"hcert": map[string]any{
			"ver": "1.3.0",
			"nam": map[string]any{"fn": "Musterfrau", "gn": "Erika", "fnt": "MUSTERFRAU", "gnt": "ERIKA"},
			"dob": "1964-08-12",
			entry: []any{fields},
		},
	}
}

func TestParse_Variants(t *testing.T) {
	vacc, err := Parse(input("v", map[string]any{"mp": "EU/1/20/1528", "dn": 2.0, "sd": 2.0, "dt": "2021-06-01", "co": "DE"}), 0)
	require.NoError(t, err)
	assert.Equal(t, KindVaccination, vacc.Kind)
	assert.Equal(t, StateValid, vacc.ValidityState)
	assert.Equal(t, "DE", vacc.Country)
	assert.Equal(t, &Vaccination{DoseNumber: 2, TotalDoses: 2, MedicalProduct: "EU/1/20/1528", Date: time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)}, vacc.Vaccination)
	assert.Equal(t, time.Unix(1643100000, 0).UTC(), vacc.IssuedAt)
	assert.Equal(t, vacc.Vaccination.Date, vacc.QualifyingDate())
	assert.Equal(t, "EU/1/20/1528", vacc.Payload["v"].([]any)[0].(map[string]any)["mp"])

	rec, err := Parse(input("r", map[string]any{"fr": "2021-12-01", "df": "2021-12-29", "co": "AT"}), 1)
	require.NoError(t, err)
	assert.Equal(t, KindRecovery, rec.Kind)
	assert.Equal(t, 1, rec.Index)
	assert.Equal(t, time.Date(2021, 12, 29, 0, 0, 0, 0, time.UTC), rec.Recovery.ValidFrom)
	assert.True(t, rec.Recovery.ValidUntil.IsZero())

	tst, err := Parse(input("t", map[string]any{"tt": "LP6464-4", "sc": "2022-01-10T08:00:00+01:00", "tr": ResultNotDetected}), 2)
	require.NoError(t, err)
	assert.Equal(t, KindTest, tst.Kind)
	assert.Equal(t, time.Date(2022, 1, 10, 7, 0, 0, 0, time.UTC), tst.QualifyingDate())
}

func TestParse_ValidityState(t *testing.T) {
	in := input("r", map[string]any{"fr": "2021-12-01"})
	in["validityState"] = "revoked"
	c, err := Parse(in, 0)
	require.NoError(t, err)
	assert.Equal(t, StateRevoked, c.ValidityState)
	assert.False(t, c.Eligible())
}

func TestParse_Rejects(t *testing.T) {
	noBarcode := input("v", map[string]any{"dt": "2021-06-01"})
	delete(noBarcode, "barcodeData")

	tests := []struct {
		name string
		raw  any
	}{
		{name: "missing barcode", raw: noBarcode},
		{name: "no entry", raw: map[string]any{"barcodeData": "x", "hcert": map[string]any{}}},
		{name: "bad date", raw: input("v", map[string]any{"dt": "June"})},
		{name: "bad recovery bound", raw: input("r", map[string]any{"fr": "2021-12-01", "du": "soon"})},
		{name: "wrong field type", raw: input("v", map[string]any{"dn": "two", "dt": "2021-06-01"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw, 0)
			assert.True(t, errors.Is(err, ErrUnsupportedCertificate), "error = %v", err)
		})
	}
}

func TestParseAll(t *testing.T) {
	certs, err := ParseAll([]any{
		input("v", map[string]any{"dn": 1.0, "sd": 2.0, "dt": "2021-05-01"}),
		input("r", map[string]any{"fr": "2021-12-01"}),
	})
	require.NoError(t, err)
	require.Len(t, certs, 2)
	assert.Equal(t, 1, certs[1].Index)

	certs, err = ParseAll(nil)
	require.NoError(t, err)
	assert.Empty(t, certs)

	_, err = ParseAll("nope")
	assert.ErrorIs(t, err, ErrUnsupportedCertificate)

	_, err = ParseAll([]any{input("v", map[string]any{"dt": "2021-05-01"}), map[string]any{}})
	assert.ErrorContains(t, err, "certificates[1]")
}

func TestParseAll_RejectsRepeatedBarcode(t *testing.T) {
	dose := input("v", map[string]any{"dn": 2.0, "sd": 2.0, "dt": "2021-05-01"})
	_, err := ParseAll([]any{
		dose,
		input("r", map[string]any{"fr": "2021-12-01"}),
		dose,
	})
	require.ErrorIs(t, err, ErrUnsupportedCertificate)
	assert.ErrorContains(t, err, "certificates[2]")
	assert.ErrorContains(t, err, "repeats certificates[0]")
}

func TestHolderHash(t *testing.T) {
	a := HolderHash(Name{FamilyName: "Schmitt Mustermann", StandardizedFamilyName: "SCHMITT<MUSTERMANN", StandardizedGivenName: "ERIKA"}, "1964-08-12")
	b := HolderHash(Name{FamilyName: "Schmitt-Mustermann", StandardizedFamilyName: "schmitt mustermann", GivenName: "Erika"}, " 1964-08-12 ")
	c := HolderHash(Name{StandardizedFamilyName: "SCHMITT<MUSTERMANN", StandardizedGivenName: "ERIKA"}, "1964-08-13")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, FormatHolderHash(a), 16)
	assert.Equal(t, "000000000000000f", FormatHolderHash(15))
}
