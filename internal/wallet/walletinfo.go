package wallet

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/TimurManjosov/cclengine/internal/text"
)

// Admission state values.
const (
	Admission2GPlusPCR = "2G_PLUS_PCR"
	Admission2GPlusRAT = "2G_PLUS_RAT"
	Admission2G        = "2G"
	Admission3GPlusPCR = "3G_PLUS_PCR"
	Admission3G        = "3G"
	AdmissionPending   = "PENDING"
	AdmissionOther     = "OTHER"
)

// Vaccination state values.
const (
	VaccinationBooster         = "BOOSTER"
	VaccinationComplete        = "COMPLETE"
	VaccinationCompletePending = "COMPLETE_PENDING"
	VaccinationPartial         = "PARTIAL"
	VaccinationNone            = "NONE"
)

// FunctionGetDccWalletInfo is the entry point every wallet configuration
// provides.
const FunctionGetDccWalletInfo = "getDccWalletInfo"

type CertificateRef struct {
	BarcodeData string `json:"barcodeData"`
}

type CertificateReference struct {
	CertificateRef CertificateRef `json:"certificateRef"`
}

type AdmissionState struct {
	Visible      bool             `json:"visible"`
	Value        string           `json:"value"`
	BadgeText    *text.Descriptor `json:"badgeText"`
	TitleText    *text.Descriptor `json:"titleText"`
	SubtitleText *text.Descriptor `json:"subtitleText"`
	LongText     *text.Descriptor `json:"longText"`
	FaqAnchor    *string          `json:"faqAnchor"`
}

type VaccinationState struct {
	Visible      bool             `json:"visible"`
	Value        string           `json:"value"`
	TitleText    *text.Descriptor `json:"titleText"`
	SubtitleText *text.Descriptor `json:"subtitleText"`
	LongText     *text.Descriptor `json:"longText"`
	FaqAnchor    *string          `json:"faqAnchor"`
}

type BoosterNotification struct {
	Visible      bool             `json:"visible"`
	Identifier   *string          `json:"identifier"`
	TitleText    *text.Descriptor `json:"titleText"`
	SubtitleText *text.Descriptor `json:"subtitleText"`
	LongText     *text.Descriptor `json:"longText"`
}

type VerificationCertificate struct {
	CertificateRef  CertificateRef   `json:"certificateRef"`
	Verifiable      bool             `json:"verifiable"`
	CertificateType string           `json:"certificateType"`
	ButtonText      *text.Descriptor `json:"buttonText"`
}

type Verification struct {
	Certificates []VerificationCertificate `json:"certificates"`
}

// WalletInfo is the typed result of getDccWalletInfo.
type WalletInfo struct {
	AdmissionState          AdmissionState        `json:"admissionState"`
	VaccinationState        VaccinationState      `json:"vaccinationState"`
	BoosterNotification     BoosterNotification   `json:"boosterNotification"`
	MostRelevantCertificate *CertificateReference `json:"mostRelevantCertificate"`
	MostRecentVaccination   *CertificateReference `json:"mostRecentVaccination"`
	VaccinationValidFrom    *string               `json:"vaccinationValidFrom"`
	HasBooster              bool                  `json:"hasBooster"`
	Verification            Verification          `json:"verification"`
}

// DecodeWalletInfo converts an evaluation result into a WalletInfo.
func DecodeWalletInfo(result any) (*WalletInfo, error) {
	data, err := json.Marshal(jfn.ToJSON(result))
	if err != nil {
		return nil, err
	}
	var info WalletInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode wallet info: %w", err)
	}
	return &info, nil
}

// Texts returns every text descriptor of info keyed by a stable name, for
// rendering in one pass.
func (info *WalletInfo) Texts() map[string]*text.Descriptor {
	out := map[string]*text.Descriptor{}
	add := func(key string, d *text.Descriptor) {
		if d != nil {
			out[key] = d
		}
	}
	add("admissionState.badgeText", info.AdmissionState.BadgeText)
	add("admissionState.titleText", info.AdmissionState.TitleText)
	add("admissionState.subtitleText", info.AdmissionState.SubtitleText)
	add("admissionState.longText", info.AdmissionState.LongText)
	add("vaccinationState.titleText", info.VaccinationState.TitleText)
	add("vaccinationState.subtitleText", info.VaccinationState.SubtitleText)
	add("vaccinationState.longText", info.VaccinationState.LongText)
	add("boosterNotification.titleText", info.BoosterNotification.TitleText)
	add("boosterNotification.subtitleText", info.BoosterNotification.SubtitleText)
	add("boosterNotification.longText", info.BoosterNotification.LongText)
	for i, c := range info.Verification.Certificates {
		add(fmt.Sprintf("verification.certificates[%d].buttonText", i), c.ButtonText)
	}
	return out
}

// RenderTexts formats every text of info in the language given by code.
// Keys are rendered in sorted order; it stops at the first text that
// cannot be rendered.
func (info *WalletInfo) RenderTexts(code string, opts text.Options) (map[string]string, error) {
	texts := info.Texts()
	keys := make([]string, 0, len(texts))
	for key := range texts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make(map[string]string, len(keys))
	for _, key := range keys {
		rendered, err := text.Format(*texts[key], code, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out[key] = rendered
	}
	return out, nil
}
