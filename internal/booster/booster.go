// Package booster evaluates booster notification rules. Rules are plain
// JSON Logic (jsonlogic.com) evaluated against the certificate payload and
// a few derived values.
package booster

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/diegoholiveira/jsonlogic/v3"
)

var ErrInvalidRule = errors.New("invalid booster notification rule")

type Description struct {
	Lang string `json:"lang"`
	Desc string `json:"desc"`
}

// Rule is one booster notification rule as distributed to wallets.
type Rule struct {
	Identifier      string        `json:"Identifier"`
	Type            string        `json:"Type"`
	Country         string        `json:"Country"`
	Version         string        `json:"Version"`
	CertificateType string        `json:"CertificateType"`
	Description     []Description `json:"Description"`
	ValidFrom       string        `json:"ValidFrom"`
	ValidTo         string        `json:"ValidTo"`
	AffectedFields  []string      `json:"AffectedFields"`
	Logic           any           `json:"Logic"`
}

// External carries the values a rule may read under "external".
type External struct {
	ValidationClock   string `json:"validationClock"`
	DaysSinceLastDose int    `json:"daysSinceLastDose"`
	DoseNumber        int    `json:"doseNumber"`
	TotalDoses        int    `json:"totalDoses"`
}

// Result is the outcome for one certificate.
type Result struct {
	Due        bool   `json:"visible"`
	Identifier string `json:"identifier,omitempty"`
}

// NewExternal derives the external values for a vaccination given at
// lastDose.
func NewExternal(now, lastDose time.Time, doseNumber, totalDoses int) External {
	return External{
		ValidationClock:   now.UTC().Format(time.RFC3339),
		DaysSinceLastDose: int(math.Floor(now.Sub(lastDose).Hours() / 24)),
		DoseNumber:        doseNumber,
		TotalDoses:        totalDoses,
	}
}

// DecodeRules reads rules from a decoded JSON list.
func DecodeRules(raw any) ([]Rule, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return rules, nil
}

// ActiveAt reports whether now falls in [ValidFrom, ValidTo). Empty bounds
// are open.
func (r Rule) ActiveAt(now time.Time) (bool, error) {
	if r.ValidFrom != "" {
		from, err := time.Parse(time.RFC3339, r.ValidFrom)
		if err != nil {
			return false, fmt.Errorf("%w: %s: ValidFrom %q", ErrInvalidRule, r.Identifier, r.ValidFrom)
		}
		if now.Before(from) {
			return false, nil
		}
	}
	if r.ValidTo != "" {
		to, err := time.Parse(time.RFC3339, r.ValidTo)
		if err != nil {
			return false, fmt.Errorf("%w: %s: ValidTo %q", ErrInvalidRule, r.Identifier, r.ValidTo)
		}
		if !now.Before(to) {
			return false, nil
		}
	}
	return true, nil
}

// Evaluate runs the active rules in order; the first truthy rule decides.
//
// Preconditions:
//   - payload is the certificate's decoded health certificate
//
// Postconditions:
//   - Result.Due is false when no active rule matches
func Evaluate(rules []Rule, payload map[string]any, ext External, now time.Time) (Result, error) {
	data, err := json.Marshal(map[string]any{
		"payload":  payload,
		"external": ext,
	})
	if err != nil {
		return Result{}, err
	}

	for _, rule := range rules {
		active, err := rule.ActiveAt(now)
		if err != nil {
			return Result{}, err
		}
		if !active {
			continue
		}
		matched, err := apply(rule, data)
		if err != nil {
			return Result{}, err
		}
		if matched {
			return Result{Due: true, Identifier: rule.Identifier}, nil
		}
	}
	return Result{}, nil
}

func apply(rule Rule, data []byte) (bool, error) {
	logic, err := json.Marshal(rule.Logic)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrInvalidRule, rule.Identifier, err)
	}
	if rule.Logic == nil || strings.TrimSpace(string(logic)) == "null" {
		return false, fmt.Errorf("%w: %s: empty logic", ErrInvalidRule, rule.Identifier)
	}

	var out bytes.Buffer
	if err := jsonlogic.Apply(bytes.NewReader(logic), bytes.NewReader(data), &out); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrInvalidRule, rule.Identifier, err)
	}
	var result any
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		return false, err
	}
	return isTruthy(result), nil
}

// isTruthy follows JavaScript-like truthiness rules.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	default:
		return true
	}
}
