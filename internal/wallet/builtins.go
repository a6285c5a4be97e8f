package wallet

import (
	"errors"
	"fmt"

	"github.com/TimurManjosov/cclengine/internal/booster"
	"github.com/TimurManjosov/cclengine/internal/certificate"
	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/TimurManjosov/cclengine/internal/validity"
)

// Builtin function names callable from descriptors.
const (
	BuiltinResolveCertificates           = "ccl.resolveCertificates"
	BuiltinSelectMostRelevantCertificate = "ccl.selectMostRelevantCertificate"
	BuiltinSelectMostRecentVaccination   = "ccl.selectMostRecentVaccination"
	BuiltinVerificationCertificates      = "ccl.verificationCertificates"
	BuiltinBoosterNotification           = "ccl.boosterNotification"
)

var ErrMissingNow = errors.New("now is required")

// Builtins exposes the wallet analysis to descriptors. A nil table uses
// validity.DefaultTable.
func Builtins(table *validity.Table) jfn.Builtins {
	rv := Resolver{Table: table}
	return jfn.Builtins{
		BuiltinResolveCertificates: func(params map[string]any) (any, error) {
			now, ok := jfn.AsInstant(params["now"])
			if !ok {
				return nil, fmt.Errorf("%w: got %v", ErrMissingNow, params["now"])
			}
			certs, err := certificate.ParseAll(params["certificates"])
			if err != nil {
				return nil, err
			}
			rules, err := booster.DecodeRules(params["boosterNotificationRules"])
			if err != nil {
				return nil, err
			}
			resolved, err := rv.Resolve(now, certs, rules)
			if err != nil {
				return nil, err
			}
			out := make([]any, len(resolved))
			for i, r := range resolved {
				out[i] = r.Value()
			}
			return out, nil
		},
		BuiltinSelectMostRelevantCertificate: selectOne(SelectMostRelevant),
		BuiltinSelectMostRecentVaccination:   selectOne(SelectMostRecentVaccination),
		BuiltinVerificationCertificates: func(params map[string]any) (any, error) {
			certs, err := resolvedListFromValue(params["certificates"])
			if err != nil {
				return nil, err
			}
			entries := VerificationEntries(certs)
			out := make([]any, len(entries))
			for i, e := range entries {
				out[i] = map[string]any{
					"certificateRef":  map[string]any{"barcodeData": e.BarcodeData},
					"verifiable":      e.Verifiable,
					"certificateType": string(e.CertificateType),
				}
			}
			return out, nil
		},
		BuiltinBoosterNotification: func(params map[string]any) (any, error) {
			certs, err := resolvedListFromValue(params["certificates"])
			if err != nil {
				return nil, err
			}
			for _, c := range certs {
				if c.BoosterDue {
					var id any
					if c.BoosterRule != "" {
						id = c.BoosterRule
					}
					return map[string]any{"visible": true, "identifier": id}, nil
				}
			}
			return map[string]any{"visible": false, "identifier": nil}, nil
		},
	}
}

func selectOne(pick func([]Resolved) (Resolved, bool)) jfn.Builtin {
	return func(params map[string]any) (any, error) {
		certs, err := resolvedListFromValue(params["certificates"])
		if err != nil {
			return nil, err
		}
		r, ok := pick(certs)
		if !ok {
			return nil, nil
		}
		return r.Value(), nil
	}
}
