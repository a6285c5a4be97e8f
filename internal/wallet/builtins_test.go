package wallet

import (
	"errors"
	"testing"

	"github.com/TimurManjosov/cclengine/internal/certificate"
	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/TimurManjosov/cclengine/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, logic any) *jfn.Program {
	t.Helper()
	prog, err := jfn.Compile([]jfn.Descriptor{{
		Name: "main",
		Definition: jfn.Definition{
			Parameters: []jfn.Parameter{{Name: "now"}, {Name: "certificates", Default: []any{}}},
			Logic:      logic,
		},
	}}, Builtins(nil))
	require.NoError(t, err)
	return prog
}

func call(name string, params map[string]any) map[string]any {
	return map[string]any{"call": []any{name, map[string]any{"object": params}}}
}

func resolveCall() map[string]any {
	return call(BuiltinResolveCertificates, map[string]any{
		"now":          map[string]any{"var": "now"},
		"certificates": map[string]any{"var": "certificates"},
	})
}

func TestBuiltins_SelectionThroughDescriptors(t *testing.T) {
	now := dose2.AddDate(0, 0, 40)
	certs := testutil.Certificates(
		testutil.Test(testutil.RAT, now.AddDate(0, 0, -3), testutil.NotDetected).Barcode("test"),
		testutil.Vaccination(2, 2, testutil.Comirnaty, dose2).Barcode("vacc"),
		testutil.Recovery(dose2.AddDate(0, -2, 0)).Barcode("rec").State("BLOCKED"),
	)
	certsVar := map[string]any{"var": "certs"}
	prog := compile(t, map[string]any{"let": []any{
		[]any{
			map[string]any{"certs": resolveCall()},
			map[string]any{"relevant": call(BuiltinSelectMostRelevantCertificate, map[string]any{"certificates": certsVar})},
		},
		map[string]any{"object": map[string]any{
			"relevant":     map[string]any{"var": "relevant.barcodeData"},
			"verification": call(BuiltinVerificationCertificates, map[string]any{"certificates": certsVar}),
			"booster":      call(BuiltinBoosterNotification, map[string]any{"certificates": certsVar}),
		}},
	}})

	out, err := prog.Call("main", map[string]any{"now": jfn.FormatInstant(now), "certificates": certs})
	require.NoError(t, err)
	got := out.(map[string]any)

	assert.Equal(t, "vacc", got["relevant"])
	assert.Equal(t, map[string]any{"visible": false, "identifier": nil}, got["booster"])
	assert.Equal(t, []any{
		map[string]any{"certificateRef": map[string]any{"barcodeData": "test"}, "verifiable": false, "certificateType": "test"},
		map[string]any{"certificateRef": map[string]any{"barcodeData": "vacc"}, "verifiable": true, "certificateType": "vaccination"},
		map[string]any{"certificateRef": map[string]any{"barcodeData": "rec"}, "verifiable": false, "certificateType": "recovery"},
	}, got["verification"])
}

func TestBuiltins_BoosterNotification(t *testing.T) {
	now := dose2.AddDate(0, 0, 100)
	prog := compile(t, map[string]any{"let": []any{
		[]any{map[string]any{"certs": resolveCall()}},
		call(BuiltinBoosterNotification, map[string]any{"certificates": map[string]any{"var": "certs"}}),
	}})

	out, err := prog.Call("main", map[string]any{
		"now":          jfn.FormatInstant(now),
		"certificates": testutil.Certificates(testutil.Vaccination(2, 2, testutil.Comirnaty, dose2)),
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"visible": true, "identifier": nil}, out)
}

func TestBuiltins_SelectOnEmptyList(t *testing.T) {
	prog := compile(t, call(BuiltinSelectMostRecentVaccination, map[string]any{"certificates": []any{}}))
	out, err := prog.Call("main", nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestBuiltins_Errors(t *testing.T) {
	prog := compile(t, resolveCall())

	_, err := prog.Call("main", map[string]any{"now": "yesterday"})
	assert.True(t, errors.Is(err, ErrMissingNow), "error = %v", err)

	_, err = prog.Call("main", map[string]any{
		"now":          "2022-01-01T00:00:00Z",
		"certificates": []any{map[string]any{"hcert": map[string]any{}}},
	})
	assert.True(t, errors.Is(err, certificate.ErrUnsupportedCertificate), "error = %v", err)
}
