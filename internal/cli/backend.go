package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/TimurManjosov/cclengine/internal/ccl"
	"github.com/TimurManjosov/cclengine/internal/client"
	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/TimurManjosov/cclengine/internal/registry"
	"github.com/TimurManjosov/cclengine/internal/rules"
	"github.com/TimurManjosov/cclengine/internal/store"
	"github.com/TimurManjosov/cclengine/internal/text"
	"github.com/TimurManjosov/cclengine/internal/wallet"
	"github.com/google/uuid"
)

// Backend answers CLI commands. *client.Client talks to a server, Local
// evaluates in-process.
type Backend interface {
	ListConfigurations(ctx context.Context) (*client.ConfigurationList, error)
	GetConfiguration(ctx context.Context, country, version string) (*rules.Configuration, error)
	Evaluate(ctx context.Context, name string, req client.EvaluateRequest, sel client.Selection) (*client.EvaluateResult, error)
	WalletInfo(ctx context.Context, input map[string]any, sel client.Selection, language string) (*client.WalletInfoResult, error)
	FormatText(ctx context.Context, d text.Descriptor, language, now string) (string, error)
}

var _ Backend = (*client.Client)(nil)

// Local runs commands against an in-process engine.
type Local struct {
	Engine   *ccl.Engine
	Fallback text.Language
	Now      func() time.Time
}

var _ Backend = (*Local)(nil)

func (l *Local) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

func (l *Local) ListConfigurations(context.Context) (*client.ConfigurationList, error) {
	reg := l.Engine.Registry()
	def, hasDefault := reg.Default()
	now := l.now()

	list := &client.ConfigurationList{ETag: reg.ETag()}
	for _, c := range reg.Configurations() {
		names := make([]string, 0, len(c.Logic.JfnDescriptors))
		for _, d := range c.Logic.JfnDescriptors {
			names = append(names, d.Name)
		}
		list.Configurations = append(list.Configurations, client.ConfigurationSummary{
			Key:        c.Key(),
			Identifier: c.Identifier,
			Country:    c.Country,
			Version:    c.Version,
			ValidFrom:  c.ValidFrom,
			ValidTo:    c.ValidTo,
			Active:     c.ActiveAt(now),
			Default:    hasDefault && def.Key() == c.Key(),
			Functions:  names,
		})
	}
	return list, nil
}

func (l *Local) GetConfiguration(_ context.Context, country, version string) (*rules.Configuration, error) {
	want := store.Key(country, version)
	for _, c := range l.Engine.Registry().Configurations() {
		if store.Key(c.Country, c.Version) == want {
			return &c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", store.ErrNotFound, want)
}

func selection(sel client.Selection) []registry.EvalOption {
	var opts []registry.EvalOption
	if sel.Country != "" {
		opts = append(opts, registry.WithCountry(sel.Country))
	}
	if sel.Version != "" {
		opts = append(opts, registry.WithVersion(sel.Version))
	}
	if sel.AllowDefault != nil {
		opts = append(opts, registry.AllowDefault(*sel.AllowDefault))
	}
	return opts
}

func (l *Local) Evaluate(_ context.Context, name string, req client.EvaluateRequest, sel client.Selection) (*client.EvaluateResult, error) {
	opts := selection(sel)
	if len(req.Descriptors) > 0 || req.ReplaceDescriptors {
		opts = append(opts, registry.WithOverrides(req.Descriptors, req.ReplaceDescriptors))
	}
	res, err := l.Engine.Run(name, req.Input, opts...)
	if err != nil {
		return nil, err
	}
	return &client.EvaluateResult{
		EvaluationID:  uuid.NewString(),
		Function:      name,
		Configuration: res.Configuration,
		ETag:          res.ETag,
		Result:        res.Value,
	}, nil
}

func (l *Local) WalletInfo(_ context.Context, input map[string]any, sel client.Selection, language string) (*client.WalletInfoResult, error) {
	res, err := l.Engine.Run(wallet.FunctionGetDccWalletInfo, input, selection(sel)...)
	if err != nil {
		return nil, err
	}
	out := &client.WalletInfoResult{
		EvaluationID:  uuid.NewString(),
		Configuration: res.Configuration,
		ETag:          res.ETag,
		WalletInfo:    res.Value,
	}
	if language == "" {
		return out, nil
	}

	info, err := wallet.DecodeWalletInfo(res.Value)
	if err != nil {
		return nil, err
	}
	now, _ := jfn.AsInstant(input["now"])
	if out.Texts, err = info.RenderTexts(language, text.Options{Now: now, FallbackLanguage: l.Fallback}); err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Local) FormatText(_ context.Context, d text.Descriptor, language, now string) (string, error) {
	at := l.now()
	if now != "" {
		t, ok := jfn.AsInstant(now)
		if !ok {
			return "", fmt.Errorf("now %q is not an ISO-8601 instant", now)
		}
		at = t
	}
	params := make([]text.Parameter, len(d.Parameters))
	for i, p := range d.Parameters {
		p.Value = jfn.Normalize(p.Value)
		params[i] = p
	}
	d.Parameters = params
	return text.Format(d, language, text.Options{Now: at, FallbackLanguage: l.Fallback})
}
