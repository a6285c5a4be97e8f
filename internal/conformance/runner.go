package conformance

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/TimurManjosov/cclengine/internal/ccl"
	"github.com/TimurManjosov/cclengine/internal/codec"
	"github.com/TimurManjosov/cclengine/internal/registry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// maxDiffs bounds the differences reported for one case.
const maxDiffs = 20

// Evaluator is the part of the engine a run needs.
type Evaluator interface {
	Run(name string, input map[string]any, opts ...registry.EvalOption) (*ccl.Result, error)
}

type Runner struct {
	Engine Evaluator
	// Parallelism caps concurrent evaluations. Zero means GOMAXPROCS.
	Parallelism int
	Logger      zerolog.Logger
}

// CaseResult is the outcome of one case. Err is set when evaluation
// failed; Diffs lists JSON pointers where the result differs.
type CaseResult struct {
	Index    int
	Title    string
	Function string
	Passed   bool
	Diffs    []string
	Err      error
	Actual   any
	Duration time.Duration
}

type Report struct {
	Results  []CaseResult
	Passed   int
	Failed   int
	Duration time.Duration
}

// OK reports whether every case passed.
func (r *Report) OK() bool { return r.Failed == 0 }

func (r *Runner) limit() int {
	if r.Parallelism > 0 {
		return r.Parallelism
	}
	return runtime.GOMAXPROCS(0)
}

// Run evaluates every case and compares canonical JSON forms. Results
// keep the suite order. Only context cancellation aborts the run.
func (r *Runner) Run(ctx context.Context, s *Suite) (*Report, error) {
	start := time.Now()
	results := make([]CaseResult, len(s.TestCases))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit())
	for i := range s.TestCases {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = r.runCase(i, s.TestCases[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep := &Report{Results: results, Duration: time.Since(start)}
	for _, res := range results {
		if res.Passed {
			rep.Passed++
		} else {
			rep.Failed++
		}
	}
	r.Logger.Info().
		Int("passed", rep.Passed).
		Int("failed", rep.Failed).
		Dur("duration", rep.Duration).
		Msg("conformance run finished")
	return rep, nil
}

func (r *Runner) runCase(i int, c Case) (res CaseResult) {
	start := time.Now()
	res = CaseResult{Index: i, Title: c.Title, Function: c.EvaluateFunction.Name}
	defer func() { res.Duration = time.Since(start) }()

	out, err := r.evaluate(c)
	if err != nil {
		res.Err = err
		r.Logger.Debug().Err(err).Str("case", c.Title).Msg("evaluation failed")
		return res
	}
	res.Actual = out

	diffs, err := Diff(c.Exp, out)
	if err != nil {
		res.Err = err
		return res
	}
	res.Diffs = diffs
	res.Passed = len(diffs) == 0
	return res
}

func (r *Runner) evaluate(c Case) (any, error) {
	var opts []registry.EvalOption
	if c.UseDefaultCCLConfiguration {
		opts = append(opts, registry.AllowDefault(true))
		if len(c.Functions) > 0 {
			opts = append(opts, registry.WithOverrides(c.Functions, false))
		}
	} else {
		opts = append(opts, registry.WithOverrides(c.Functions, true))
	}
	res, err := r.Engine.Run(c.EvaluateFunction.Name, c.EvaluateFunction.Parameters, opts...)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// Record evaluates every case and stores the result as its expectation.
// A case that fails to evaluate aborts recording.
func (r *Runner) Record(ctx context.Context, s *Suite) (*Suite, error) {
	out := &Suite{Comment: s.Comment, TestCases: make([]Case, len(s.TestCases))}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit())
	for i := range s.TestCases {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			c := s.TestCases[i]
			v, err := r.evaluate(c)
			if err != nil {
				return fmt.Errorf("test case %d (%q): %w", i+1, c.Title, err)
			}
			c.Exp = v
			out.TestCases[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Diff compares want and got by their canonical JSON forms and returns
// the JSON pointers of differing values, at most maxDiffs of them.
func Diff(want, got any) ([]string, error) {
	a, err := canonicalTree(want)
	if err != nil {
		return nil, fmt.Errorf("expected value: %w", err)
	}
	b, err := canonicalTree(got)
	if err != nil {
		return nil, fmt.Errorf("actual value: %w", err)
	}
	var diffs []string
	diffTree("", a, b, &diffs)
	sort.Strings(diffs)
	if len(diffs) > maxDiffs {
		diffs = append(diffs[:maxDiffs], fmt.Sprintf("... %d more", len(diffs)-maxDiffs))
	}
	return diffs, nil
}

func canonicalTree(v any) (any, error) {
	raw, err := codec.Canonical(v)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

func diffTree(path string, a, b any, out *[]string) {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok {
			*out = append(*out, pointer(path))
			return
		}
		for k, x := range av {
			y, ok := bv[k]
			if !ok {
				*out = append(*out, pointer(path+"/"+escape(k)))
				continue
			}
			diffTree(path+"/"+escape(k), x, y, out)
		}
		for k := range bv {
			if _, ok := av[k]; !ok {
				*out = append(*out, pointer(path+"/"+escape(k)))
			}
		}
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			*out = append(*out, pointer(path))
			return
		}
		for i := range av {
			diffTree(path+"/"+strconv.Itoa(i), av[i], bv[i], out)
		}
	default:
		if a != b {
			*out = append(*out, pointer(path))
		}
	}
}

func pointer(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func escape(key string) string {
	return strings.NewReplacer("~", "~0", "/", "~1").Replace(key)
}
