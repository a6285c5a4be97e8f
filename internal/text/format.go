// Package text renders localized text descriptors.
package text

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/TimurManjosov/cclengine/internal/jfn"
	"golang.org/x/text/feature/plural"
	"golang.org/x/text/message"
)

var (
	ErrMissingTranslation      = errors.New("missing translation")
	ErrUnresolvablePlaceholder = errors.New("unresolvable placeholder")
	ErrUnsupportedLanguage     = errors.New("unsupported language")
	ErrInvalidDescriptor       = errors.New("invalid text descriptor")
)

// Options control one Format call.
type Options struct {
	// Now anchors the relative parameter types (daysSince, ...).
	Now time.Time
	// FallbackLanguage is used when the requested language has no
	// template. Empty means no fallback.
	FallbackLanguage Language
}

// Format renders d in the language given by code.
//
// Preconditions:
//   - code names a supported language (see ParseLanguage)
//
// Postconditions:
//   - on error no partial text is returned
func Format(d Descriptor, code string, opts Options) (string, error) {
	lang, err := ParseLanguage(code)
	if err != nil {
		return "", err
	}
	params, err := resolveParameters(d.Parameters, lang, opts.Now)
	if err != nil {
		return "", err
	}

	var tmpl string
	switch d.Type {
	case TypeString, "":
		tmpl, err = pick(d.LocalizedText, lang, opts.FallbackLanguage)
	case TypePlural:
		tmpl, err = pickPlural(d, lang, opts.FallbackLanguage, params)
	default:
		err = fmt.Errorf("%w: type %q", ErrInvalidDescriptor, d.Type)
	}
	if err != nil {
		return "", err
	}
	return substitute(tmpl, params, lang)
}

func pick(texts map[string]string, lang, fallback Language) (string, error) {
	if s, ok := texts[string(lang)]; ok {
		return s, nil
	}
	if fallback != "" {
		if s, ok := texts[string(fallback)]; ok {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrMissingTranslation, lang)
}

func pickPlural(d Descriptor, lang, fallback Language, params []resolved) (string, error) {
	var quantity float64
	switch {
	case d.Quantity != nil:
		quantity = *d.Quantity
	case d.QuantityParameterIndex != nil:
		idx := *d.QuantityParameterIndex
		if idx < 0 || idx >= len(params) || !params[idx].numeric {
			return "", fmt.Errorf("%w: quantity parameter %d is not a number", ErrInvalidDescriptor, idx)
		}
		quantity = params[idx].number
	default:
		return "", fmt.Errorf("%w: plural text without quantity", ErrInvalidDescriptor)
	}

	forms, chosen := d.LocalizedQuantityText[string(lang)], lang
	if forms == nil && fallback != "" {
		forms, chosen = d.LocalizedQuantityText[string(fallback)], fallback
	}
	if forms == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingTranslation, lang)
	}

	form := pluralForm(chosen, quantity)
	if s, ok := forms[form]; ok {
		return s, nil
	}
	if s, ok := forms["other"]; ok {
		return s, nil
	}
	return "", fmt.Errorf("%w: %s has no %q form", ErrMissingTranslation, chosen, form)
}

func pluralForm(lang Language, quantity float64) string {
	i := int(math.Abs(quantity))
	var form plural.Form
	if quantity == math.Trunc(quantity) {
		form = plural.Cardinal.MatchPlural(lang.info().tag, i, 0, 0, 0, 0)
	} else {
		// One visible fraction digit is enough to leave the "one" class.
		frac := int(math.Round((math.Abs(quantity) - float64(i)) * 10))
		form = plural.Cardinal.MatchPlural(lang.info().tag, i, 1, 1, frac, frac)
	}
	switch form {
	case plural.Zero:
		return "zero"
	case plural.One:
		return "one"
	case plural.Two:
		return "two"
	case plural.Few:
		return "few"
	case plural.Many:
		return "many"
	default:
		return "other"
	}
}

type resolved struct {
	text    string
	number  float64
	numeric bool
}

func resolveParameters(params []Parameter, lang Language, now time.Time) ([]resolved, error) {
	out := make([]resolved, len(params))
	for i, p := range params {
		r, err := resolveParameter(p, lang, now)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

func resolveParameter(p Parameter, lang Language, now time.Time) (resolved, error) {
	switch p.Type {
	case ParamString, "":
		return resolved{text: displayString(p.Value)}, nil
	case ParamNumber:
		n, ok := number(p.Value)
		if !ok {
			return resolved{}, fmt.Errorf("%w: %v is not a number", ErrUnresolvablePlaceholder, p.Value)
		}
		return numeric(n, lang), nil
	}

	t, ok := jfn.AsInstant(p.Value)
	if !ok {
		return resolved{}, fmt.Errorf("%w: %s value %v is not an instant", ErrUnresolvablePlaceholder, p.Type, p.Value)
	}
	switch p.Type {
	case ParamDate, ParamDateTime:
		layout := p.Format
		if layout == "" {
			layout = lang.info().date
			if p.Type == ParamDateTime {
				layout = lang.info().dateTime
			}
		}
		return resolved{text: t.UTC().Format(layout)}, nil
	}

	if now.IsZero() {
		return resolved{}, fmt.Errorf("%w: %s needs the current time", ErrUnresolvablePlaceholder, p.Type)
	}
	var d time.Duration
	var unit time.Duration
	switch p.Type {
	case ParamDaysSince:
		d, unit = now.Sub(t), 24*time.Hour
	case ParamDaysUntil:
		d, unit = t.Sub(now), 24*time.Hour
	case ParamHoursSince:
		d, unit = now.Sub(t), time.Hour
	case ParamHoursUntil:
		d, unit = t.Sub(now), time.Hour
	default:
		return resolved{}, fmt.Errorf("%w: unknown parameter type %q", ErrInvalidDescriptor, p.Type)
	}
	return numeric(math.Floor(float64(d)/float64(unit)), lang), nil
}

func numeric(n float64, lang Language) resolved {
	printer := message.NewPrinter(lang.info().tag)
	var s string
	if n == math.Trunc(n) {
		s = printer.Sprintf("%d", int64(n))
	} else {
		s = printer.Sprintf("%v", n)
	}
	return resolved{text: s, number: n, numeric: true}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func displayString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return jfn.FormatInstant(val)
	default:
		return fmt.Sprint(val)
	}
}

// substitute expands %s, %d, positional %N$s / %N$d and %%.
func substitute(tmpl string, params []resolved, lang Language) (string, error) {
	var sb strings.Builder
	next := 0
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		if i+1 >= len(tmpl) {
			return "", fmt.Errorf("%w: trailing %%", ErrUnresolvablePlaceholder)
		}
		if tmpl[i+1] == '%' {
			sb.WriteByte('%')
			i++
			continue
		}

		j := i + 1
		for j < len(tmpl) && tmpl[j] >= '0' && tmpl[j] <= '9' {
			j++
		}
		idx := next
		if j > i+1 {
			if j >= len(tmpl) || tmpl[j] != '$' {
				return "", fmt.Errorf("%w: %q", ErrUnresolvablePlaceholder, tmpl[i:j])
			}
			pos, _ := strconv.Atoi(tmpl[i+1 : j])
			idx = pos - 1
			j++
		} else {
			next++
		}
		if j >= len(tmpl) {
			return "", fmt.Errorf("%w: %q", ErrUnresolvablePlaceholder, tmpl[i:])
		}
		verb := tmpl[j]
		if idx < 0 || idx >= len(params) {
			return "", fmt.Errorf("%w: %q refers to parameter %d of %d", ErrUnresolvablePlaceholder, tmpl[i:j+1], idx+1, len(params))
		}
		p := params[idx]
		switch verb {
		case 's':
			sb.WriteString(p.text)
		case 'd':
			if !p.numeric {
				return "", fmt.Errorf("%w: %q needs a number", ErrUnresolvablePlaceholder, tmpl[i:j+1])
			}
			sb.WriteString(numeric(math.Trunc(p.number), lang).text)
		default:
			return "", fmt.Errorf("%w: unknown verb %q", ErrUnresolvablePlaceholder, tmpl[i:j+1])
		}
		i = j
	}
	return sb.String(), nil
}
