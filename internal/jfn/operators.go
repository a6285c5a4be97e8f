package jfn

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// compareHandler decides a comparison from the ordering of two values.
type compareHandler func(a, b any) bool

var compareHandlers = map[string]compareHandler{
	"===": strictEquals,
	"!==": func(a, b any) bool { return !strictEquals(a, b) },
	"==":  looseEquals,
	"!=":  func(a, b any) bool { return !looseEquals(a, b) },
	"<":   orderedHandler(func(c int) bool { return c < 0 }),
	"<=":  orderedHandler(func(c int) bool { return c <= 0 }),
	">":   orderedHandler(func(c int) bool { return c > 0 }),
	">=":  orderedHandler(func(c int) bool { return c >= 0 }),
}

func orderedHandler(accept func(int) bool) compareHandler {
	return func(a, b any) bool {
		c, ok := compareValues(a, b)
		return ok && accept(c)
	}
}

// arithHandler returns nil when an operand is not numeric.
type arithHandler func(args []float64) any

var arithHandlers = map[string]arithHandler{
	"+": func(args []float64) any {
		sum := 0.0
		for _, a := range args {
			sum += a
		}
		return sum
	},
	"-": func(args []float64) any {
		if len(args) == 1 {
			return -args[0]
		}
		return args[0] - args[1]
	},
	"*": func(args []float64) any {
		product := 1.0
		for _, a := range args {
			product *= a
		}
		return product
	},
	"/": func(args []float64) any {
		if args[1] == 0 {
			return nil
		}
		return args[0] / args[1]
	},
	"%": func(args []float64) any {
		if args[1] == 0 {
			return nil
		}
		return math.Mod(args[0], args[1])
	},
	"min": func(args []float64) any {
		m := args[0]
		for _, a := range args[1:] {
			m = math.Min(m, a)
		}
		return m
	},
	"max": func(args []float64) any {
		m := args[0]
		for _, a := range args[1:] {
			m = math.Max(m, a)
		}
		return m
	},
}

type stringHandler func(args []any) any

var stringHandlers = map[string]stringHandler{
	"cat": func(args []any) any {
		var sb strings.Builder
		for _, a := range args {
			sb.WriteString(toDisplayString(a))
		}
		return sb.String()
	},
	"toUpperCase": func(args []any) any { return strings.ToUpper(toDisplayString(args[0])) },
	"toLowerCase": func(args []any) any { return strings.ToLower(toDisplayString(args[0])) },
	"trim":        func(args []any) any { return strings.TrimSpace(toDisplayString(args[0])) },
	"replaceAll": func(args []any) any {
		return strings.ReplaceAll(toDisplayString(args[0]), toDisplayString(args[1]), toDisplayString(args[2]))
	},
	"split": func(args []any) any {
		parts := strings.Split(toDisplayString(args[0]), toDisplayString(args[1]))
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out
	},
}

type timeUnit int

const (
	unitYear timeUnit = iota
	unitMonth
	unitDay
	unitHour
	unitMinute
	unitSecond
)

var timeUnits = map[string]timeUnit{
	"year":   unitYear,
	"month":  unitMonth,
	"day":    unitDay,
	"hour":   unitHour,
	"minute": unitMinute,
	"second": unitSecond,
}

var unitDurations = map[timeUnit]time.Duration{
	unitDay:    24 * time.Hour,
	unitHour:   time.Hour,
	unitMinute: time.Minute,
	unitSecond: time.Second,
}

func lookupUnit(v any) (timeUnit, error) {
	s, _ := v.(string)
	u, ok := timeUnits[s]
	if !ok {
		return 0, fmt.Errorf("unknown time unit %v", v)
	}
	return u, nil
}

// plusTime adds amount units to t. Calendar units follow time.AddDate.
func plusTime(t time.Time, amount int, unit timeUnit) time.Time {
	switch unit {
	case unitYear:
		return t.AddDate(amount, 0, 0)
	case unitMonth:
		return t.AddDate(0, amount, 0)
	default:
		return t.Add(time.Duration(amount) * unitDurations[unit])
	}
}

// diffTime returns the number of whole units from b to a (a - b),
// truncated toward zero.
func diffTime(a, b time.Time, unit timeUnit) float64 {
	if unit == unitYear || unit == unitMonth {
		months := wholeMonths(a, b)
		if unit == unitYear {
			return float64(months / 12)
		}
		return float64(months)
	}
	return float64(a.Sub(b) / unitDurations[unit])
}

func wholeMonths(a, b time.Time) int {
	if a.Before(b) {
		return -wholeMonths(b, a)
	}
	months := (a.Year()-b.Year())*12 + int(a.Month()-b.Month())
	if b.AddDate(0, months, 0).After(a) {
		months--
	}
	return months
}
