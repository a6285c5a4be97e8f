// Package certificate turns caller-supplied certificate input into the
// typed records the wallet analysis works on.
package certificate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/cespare/xxhash/v2"
)

var ErrUnsupportedCertificate = errors.New("unsupported certificate")

type Kind string

const (
	KindVaccination Kind = "vaccination"
	KindRecovery    Kind = "recovery"
	KindTest        Kind = "test"
)

// ValidityState is supplied by the caller; the engine never re-derives
// cryptographic validity.
type ValidityState string

const (
	StateValid   ValidityState = "VALID"
	StateExpired ValidityState = "EXPIRED"
	StateInvalid ValidityState = "INVALID"
	StateBlocked ValidityState = "BLOCKED"
	StateRevoked ValidityState = "REVOKED"
)

// Test result codes (SNOMED CT).
const (
	ResultNotDetected = "260415000"
	ResultDetected    = "260373001"
)

type Certificate struct {
	Index         int
	Kind          Kind
	BarcodeData   string
	HolderHash    uint64
	Country       string
	ValidityState ValidityState
	IssuedAt      time.Time // zero when the input carries no iat

	// Payload is the decoded health certificate as supplied.
	Payload map[string]any

	Vaccination *Vaccination
	Recovery    *Recovery
	Test        *Test
}

type Vaccination struct {
	DoseNumber     int
	TotalDoses     int
	MedicalProduct string
	Date           time.Time
}

// Recovery bounds are zero when the certificate does not carry them.
type Recovery struct {
	FirstPositive time.Time
	ValidFrom     time.Time
	ValidUntil    time.Time
}

type Test struct {
	TestType         string
	SampleCollection time.Time
	Result           string
}

// Eligible reports whether the certificate may contribute to admission
// and vaccination state.
func (c Certificate) Eligible() bool {
	return c.ValidityState == StateValid
}

// QualifyingDate is the date the certificate's claim refers to: the
// vaccination date, first positive result or sample collection.
func (c Certificate) QualifyingDate() time.Time {
	switch {
	case c.Vaccination != nil:
		return c.Vaccination.Date
	case c.Recovery != nil:
		return c.Recovery.FirstPositive
	case c.Test != nil:
		return c.Test.SampleCollection
	}
	return time.Time{}
}

// Input mirrors the wire shape of one certificate in an evaluation input.
type Input struct {
	BarcodeData   string `json:"barcodeData"`
	CWT           CWT    `json:"cwt"`
	HCert         HCert  `json:"hcert"`
	ValidityState string `json:"validityState"`
}

type CWT struct {
	Issuer    string   `json:"iss"`
	IssuedAt  *float64 `json:"iat"`
	ExpiresAt *float64 `json:"exp"`
}

type HCert struct {
	Version      string           `json:"ver"`
	Name         Name             `json:"nam"`
	DateOfBirth  string           `json:"dob"`
	Vaccinations []VaccinationRaw `json:"v"`
	Recoveries   []RecoveryRaw    `json:"r"`
	Tests        []TestRaw        `json:"t"`
}

type Name struct {
	FamilyName             string `json:"fn"`
	GivenName              string `json:"gn"`
	StandardizedFamilyName string `json:"fnt"`
	StandardizedGivenName  string `json:"gnt"`
}

type VaccinationRaw struct {
	Target         string  `json:"tg"`
	Vaccine        string  `json:"vp"`
	MedicalProduct string  `json:"mp"`
	Manufacturer   string  `json:"ma"`
	DoseNumber     float64 `json:"dn"`
	TotalDoses     float64 `json:"sd"`
	Date           string  `json:"dt"`
	Country        string  `json:"co"`
	Issuer         string  `json:"is"`
	CertificateID  string  `json:"ci"`
}

type RecoveryRaw struct {
	Target        string `json:"tg"`
	FirstPositive string `json:"fr"`
	Country       string `json:"co"`
	Issuer        string `json:"is"`
	ValidFrom     string `json:"df"`
	ValidUntil    string `json:"du"`
	CertificateID string `json:"ci"`
}

type TestRaw struct {
	Target           string `json:"tg"`
	TestType         string `json:"tt"`
	Name             string `json:"nm"`
	Manufacturer     string `json:"ma"`
	SampleCollection string `json:"sc"`
	Result           string `json:"tr"`
	Center           string `json:"tc"`
	Country          string `json:"co"`
	Issuer           string `json:"is"`
	CertificateID    string `json:"ci"`
}

// ParseAll decodes a list of certificate inputs in order. raw is usually
// a decoded JSON array.
func ParseAll(raw any) ([]Certificate, error) {
	list, ok := jfn.Normalize(raw).([]any)
	if !ok {
		if raw == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: certificates must be a list, got %T", ErrUnsupportedCertificate, raw)
	}
	out := make([]Certificate, 0, len(list))
	seen := make(map[string]int, len(list))
	for i, item := range list {
		c, err := Parse(item, i)
		if err != nil {
			return nil, fmt.Errorf("certificates[%d]: %w", i, err)
		}
		if first, dup := seen[c.BarcodeData]; dup {
			return nil, fmt.Errorf("certificates[%d]: %w: barcodeData repeats certificates[%d]", i, ErrUnsupportedCertificate, first)
		}
		seen[c.BarcodeData] = i
		out = append(out, c)
	}
	return out, nil
}

// Parse decodes one certificate input. index is its position in the
// caller's list.
func Parse(raw any, index int) (Certificate, error) {
	data, err := json.Marshal(jfn.ToJSON(raw))
	if err != nil {
		return Certificate{}, err
	}
	var in Input
	if err := json.Unmarshal(data, &in); err != nil {
		return Certificate{}, fmt.Errorf("%w: %v", ErrUnsupportedCertificate, err)
	}
	payload, _ := jfn.Normalize(rawField(raw, "hcert")).(map[string]any)
	return fromInput(in, payload, index)
}

func rawField(raw any, key string) any {
	if m, ok := jfn.Normalize(raw).(map[string]any); ok {
		return m[key]
	}
	return nil
}

func fromInput(in Input, payload map[string]any, index int) (Certificate, error) {
	if in.BarcodeData == "" {
		return Certificate{}, fmt.Errorf("%w: barcodeData is required", ErrUnsupportedCertificate)
	}
	c := Certificate{
		Index:         index,
		BarcodeData:   in.BarcodeData,
		HolderHash:    HolderHash(in.HCert.Name, in.HCert.DateOfBirth),
		ValidityState: ValidityState(strings.ToUpper(in.ValidityState)),
		Payload:       payload,
	}
	if c.ValidityState == "" {
		c.ValidityState = StateValid
	}
	if in.CWT.IssuedAt != nil {
		c.IssuedAt = time.Unix(int64(*in.CWT.IssuedAt), 0).UTC()
	}

	h := in.HCert
	switch {
	case len(h.Vaccinations) > 0:
		v := h.Vaccinations[0]
		date, err := parseDate("dt", v.Date)
		if err != nil {
			return Certificate{}, err
		}
		c.Kind = KindVaccination
		c.Country = v.Country
		c.Vaccination = &Vaccination{
			DoseNumber:     int(v.DoseNumber),
			TotalDoses:     int(v.TotalDoses),
			MedicalProduct: v.MedicalProduct,
			Date:           date,
		}
	case len(h.Recoveries) > 0:
		r := h.Recoveries[0]
		fr, err := parseDate("fr", r.FirstPositive)
		if err != nil {
			return Certificate{}, err
		}
		rec := &Recovery{FirstPositive: fr}
		if r.ValidFrom != "" {
			if rec.ValidFrom, err = parseDate("df", r.ValidFrom); err != nil {
				return Certificate{}, err
			}
		}
		if r.ValidUntil != "" {
			if rec.ValidUntil, err = parseDate("du", r.ValidUntil); err != nil {
				return Certificate{}, err
			}
		}
		c.Kind = KindRecovery
		c.Country = r.Country
		c.Recovery = rec
	case len(h.Tests) > 0:
		tr := h.Tests[0]
		sc, err := parseDate("sc", tr.SampleCollection)
		if err != nil {
			return Certificate{}, err
		}
		c.Kind = KindTest
		c.Country = tr.Country
		c.Test = &Test{TestType: tr.TestType, SampleCollection: sc, Result: tr.Result}
	default:
		return Certificate{}, fmt.Errorf("%w: hcert has no v, r or t entry", ErrUnsupportedCertificate)
	}
	return c, nil
}

func parseDate(field, s string) (time.Time, error) {
	t, err := jfn.ParseInstant(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s %q is not a date", ErrUnsupportedCertificate, field, s)
	}
	return t, nil
}

// HolderHash identifies a holder by standardized name and date of birth.
// Certificates of one person hash equal even when display names differ.
func HolderHash(n Name, dob string) uint64 {
	key := strings.Join([]string{
		normalizeName(n.StandardizedFamilyName, n.FamilyName),
		normalizeName(n.StandardizedGivenName, n.GivenName),
		strings.TrimSpace(dob),
	}, "\x1f")
	return xxhash.Sum64String(key)
}

func normalizeName(standardized, display string) string {
	s := standardized
	if s == "" {
		s = display
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool { return r == '<' || r == ' ' }), "<")
}

// FormatHolderHash renders h as fixed-width hex.
func FormatHolderHash(h uint64) string {
	s := strconv.FormatUint(h, 16)
	return strings.Repeat("0", 16-len(s)) + s
}
