package testutil

import (
	"fmt"
	"strings"
	"time"
)

// Product and test type codes used by the fixtures.
const (
	Comirnaty = "EU/1/20/1528"
	Jcovden   = "EU/1/20/1525"
	PCR       = "LP6464-4"
	RAT       = "LP217198-3"
)

const (
	NotDetected = "260415000"
	Detected    = "260373001"
)

// Holder is the person the fixture certificates are issued to.
type Holder struct {
	FamilyName  string
	GivenName   string
	DateOfBirth string
}

var DefaultHolder = Holder{FamilyName: "Schmitt Mustermann", GivenName: "Erika Dörte", DateOfBirth: "1964-08-12"}

func (h Holder) name() map[string]any {
	return map[string]any{
		"fn":  h.FamilyName,
		"gn":  h.GivenName,
		"fnt": standardize(h.FamilyName),
		"gnt": standardize(h.GivenName),
	}
}

func standardize(s string) string {
	r := strings.NewReplacer("ä", "AE", "ö", "OE", "ü", "UE", "ß", "SS", " ", "<", "-", "<")
	return strings.ToUpper(r.Replace(strings.ToLower(s)))
}

// CertificateBuilder assembles one certificate input as the engine
// receives it.
type CertificateBuilder struct {
	barcode  string
	holder   Holder
	state    string
	issuedAt *time.Time
	entry    string
	fields   map[string]any
}

func newBuilder(entry string, fields map[string]any) *CertificateBuilder {
	return &CertificateBuilder{holder: DefaultHolder, entry: entry, fields: fields}
}

// Vaccination builds dose dn of sd of product mp given on dt.
func Vaccination(dn, sd int, mp string, dt time.Time) *CertificateBuilder {
	return newBuilder("v", map[string]any{
		"tg": "840539006",
		"vp": "1119349007",
		"mp": mp,
		"ma": "ORG-100030215",
		"dn": dn,
		"sd": sd,
		"dt": dt.UTC().Format("2006-01-02"),
		"co": "DE",
		"is": "Robert Koch-Institut",
		"ci": fmt.Sprintf("URN:UVCI:01DE/IZ12345A/V%d%s", dn, dt.Format("20060102")),
	})
}

// Recovery builds a recovery certificate for a first positive result on fr.
func Recovery(fr time.Time) *CertificateBuilder {
	return newBuilder("r", map[string]any{
		"tg": "840539006",
		"fr": fr.UTC().Format("2006-01-02"),
		"co": "DE",
		"is": "Robert Koch-Institut",
		"ci": fmt.Sprintf("URN:UVCI:01DE/5CWLU12RNOB9RXSEOP6FG8/R%s", fr.Format("20060102")),
	})
}

// Test builds a test certificate of type tt sampled at sc.
func Test(tt string, sc time.Time, result string) *CertificateBuilder {
	return newBuilder("t", map[string]any{
		"tg": "840539006",
		"tt": tt,
		"sc": sc.UTC().Format(time.RFC3339),
		"tr": result,
		"tc": "Testzentrum Köln Hbf",
		"co": "DE",
		"is": "Robert Koch-Institut",
		"ci": fmt.Sprintf("URN:UVCI:01DE/IBMT102/T%s", sc.UTC().Format("20060102150405")),
	})
}

func (b *CertificateBuilder) Barcode(s string) *CertificateBuilder {
	b.barcode = s
	return b
}

func (b *CertificateBuilder) State(s string) *CertificateBuilder {
	b.state = s
	return b
}

func (b *CertificateBuilder) IssuedAt(t time.Time) *CertificateBuilder {
	b.issuedAt = &t
	return b
}

func (b *CertificateBuilder) Holder(h Holder) *CertificateBuilder {
	b.holder = h
	return b
}

// Set overrides one field of the health certificate entry.
func (b *CertificateBuilder) Set(key string, value any) *CertificateBuilder {
	b.fields[key] = value
	return b
}

// Build returns the input object. The barcode defaults to a value derived
// from the entry.
func (b *CertificateBuilder) Build() map[string]any {
	barcode := b.barcode
	if barcode == "" {
		barcode = fmt.Sprintf("HC1:%s:%v", b.entry, b.fields["ci"])
	}
	cwt := map[string]any{"iss": "DE"}
	if b.issuedAt != nil {
		cwt["iat"] = b.issuedAt.Unix()
	}
	fields := make(map[string]any, len(b.fields))
	for k, v := range b.fields {
		fields[k] = v
	}
	in := map[string]any{
		"barcodeData": barcode,
		"cwt":         cwt,
		"hcert": map[string]any{
			"ver":   "1.3.0",
			"nam":   b.holder.name(),
			"dob":   b.holder.DateOfBirth,
			b.entry: []any{fields},
		},
	}
	if b.state != "" {
		in["validityState"] = b.state
	}
	return in
}

// Certificates builds every builder in order.
func Certificates(builders ...*CertificateBuilder) []any {
	out := make([]any, len(builders))
	for i, b := range builders {
		out[i] = b.Build()
	}
	return out
}

// Day returns midnight UTC of the given date.
func Day(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
