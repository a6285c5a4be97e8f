// Package ccl is the entry point for evaluating wallet rule
// configurations. It checks inputs and results against the published
// schemas around every evaluation.
package ccl

import (
	"fmt"
	"time"

	"github.com/TimurManjosov/cclengine/internal/codec"
	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/TimurManjosov/cclengine/internal/registry"
	"github.com/TimurManjosov/cclengine/internal/rules"
	"github.com/TimurManjosov/cclengine/internal/schema"
	"github.com/TimurManjosov/cclengine/internal/validity"
	"github.com/TimurManjosov/cclengine/internal/wallet"
	"github.com/rs/zerolog"
)

// Options configures an Engine. Country and Version select the
// configuration when a call does not; AllowDefault enables the registry
// fallback for every call.
type Options struct {
	Country      string
	Version      string
	AllowDefault bool
	Logger       zerolog.Logger
}

type Engine struct {
	holder    *registry.Holder
	validator *schema.Validator
	opts      Options
}

func New(holder *registry.Holder, validator *schema.Validator, opts Options) *Engine {
	return &Engine{holder: holder, validator: validator, opts: opts}
}

// Builtins are the host functions every wallet configuration may call.
func Builtins() jfn.Builtins {
	return wallet.Builtins(&validity.DefaultTable)
}

// NewRegistry compiles configs with the wallet builtins.
func NewRegistry(configs []rules.Configuration, defaultKey string) (*registry.Registry, error) {
	return registry.New(configs, registry.Options{Builtins: Builtins(), Default: defaultKey})
}

// NewBundled builds an engine over the configurations shipped with the
// binary.
func NewBundled(opts Options) (*Engine, error) {
	configs, err := rules.Bundled()
	if err != nil {
		return nil, err
	}
	reg, err := NewRegistry(configs, "")
	if err != nil {
		return nil, err
	}
	validator, err := schema.New()
	if err != nil {
		return nil, err
	}
	return New(registry.NewHolder(reg), validator, opts), nil
}

// Registry returns the active registry.
func (e *Engine) Registry() *registry.Registry { return e.holder.Load() }

// Holder exposes the registry holder for reloads.
func (e *Engine) Holder() *registry.Holder { return e.holder }

// Validator returns the schema validator in use.
func (e *Engine) Validator() *schema.Validator { return e.validator }

func (e *Engine) selection(opts []registry.EvalOption) []registry.EvalOption {
	all := make([]registry.EvalOption, 0, len(opts)+3)
	if e.opts.Country != "" {
		all = append(all, registry.WithCountry(e.opts.Country))
	}
	if e.opts.Version != "" {
		all = append(all, registry.WithVersion(e.opts.Version))
	}
	if e.opts.AllowDefault {
		all = append(all, registry.AllowDefault(true))
	}
	return append(all, opts...)
}

// Result is one evaluation together with the configuration it ran on.
type Result struct {
	Value any
	// Configuration is the "COUNTRY@VERSION" key of the selected
	// configuration, empty when overrides replaced it.
	Configuration string
	ETag          string
}

// Evaluate runs the function name with input. For getDccWalletInfo the
// input and the result are checked against their schemas. The result
// contains plain JSON values only.
//
// Postconditions:
//   - input is not modified
//   - on error no result is returned
func (e *Engine) Evaluate(name string, input map[string]any, opts ...registry.EvalOption) (any, error) {
	res, err := e.Run(name, input, opts...)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// Run is Evaluate reporting the selected configuration. Selection and
// evaluation use the same registry even when a reload happens meanwhile.
func (e *Engine) Run(name string, input map[string]any, opts ...registry.EvalOption) (*Result, error) {
	start := time.Now()
	params, _ := jfn.Normalize(input).(map[string]any)
	if params == nil {
		params = map[string]any{}
	}

	boundary := name == wallet.FunctionGetDccWalletInfo
	if boundary {
		if err := e.validator.Validate(schema.WalletInfoInput, params); err != nil {
			return nil, err
		}
		now, err := parseNow(params["now"])
		if err != nil {
			return nil, err
		}
		params["now"] = now
	}

	reg := e.holder.Load()
	sel, err := reg.Select(e.selection(opts)...)
	if err != nil {
		return nil, err
	}
	out, err := sel.Program.Call(name, params)
	if err != nil {
		e.opts.Logger.Debug().Err(err).Str("function", name).Msg("evaluation failed")
		return nil, err
	}
	result := jfn.ToJSON(out)

	if boundary {
		if err := e.validator.Validate(schema.WalletInfoOutput, result); err != nil {
			e.opts.Logger.Error().Err(err).Str("function", name).Msg("result violates output schema")
			return nil, err
		}
	}

	res := &Result{Value: result, ETag: reg.ETag()}
	if sel.Config != nil {
		res.Configuration = sel.Config.Key()
	}
	e.opts.Logger.Debug().
		Str("function", name).
		Str("configuration", res.Configuration).
		Dur("duration", time.Since(start)).
		Msg("evaluated")
	return res, nil
}

func parseNow(v any) (time.Time, error) {
	if t, ok := jfn.AsInstant(v); ok {
		return t, nil
	}
	return time.Time{}, &schema.ValidationError{
		Schema: schema.WalletInfoInput,
		Violations: []schema.Violation{{
			Path:       "/now",
			Constraint: "format",
			Message:    fmt.Sprintf("%v is not an ISO-8601 instant", v),
		}},
	}
}

// GetDccWalletInfo evaluates getDccWalletInfo and decodes the result.
func (e *Engine) GetDccWalletInfo(input map[string]any, opts ...registry.EvalOption) (*wallet.WalletInfo, error) {
	out, err := e.Evaluate(wallet.FunctionGetDccWalletInfo, input, opts...)
	if err != nil {
		return nil, err
	}
	return wallet.DecodeWalletInfo(out)
}

// Canonical renders an evaluation result as RFC 8785 JSON.
func Canonical(result any) ([]byte, error) {
	return codec.Canonical(result)
}
