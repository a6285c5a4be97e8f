package rules

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/TimurManjosov/cclengine/internal/jfn"
)

const (
	ConfigurationType = "CCLConfiguration"
	EngineName        = "JsonFunctions"
)

// Configuration is one distributable rule configuration. Field names match
// the published document format.
type Configuration struct {
	Identifier    string `json:"Identifier" yaml:"Identifier"`
	Type          string `json:"Type" yaml:"Type"`
	Country       string `json:"Country" yaml:"Country"`
	Version       string `json:"Version" yaml:"Version"`
	SchemaVersion string `json:"SchemaVersion" yaml:"SchemaVersion"`
	Engine        string `json:"Engine" yaml:"Engine"`
	EngineVersion string `json:"EngineVersion" yaml:"EngineVersion"`
	ValidFrom     string `json:"ValidFrom" yaml:"ValidFrom"`
	ValidTo       string `json:"ValidTo" yaml:"ValidTo"`
	Logic         Logic  `json:"Logic" yaml:"Logic"`
}

type Logic struct {
	JfnDescriptors []jfn.Descriptor `json:"JfnDescriptors" yaml:"JfnDescriptors"`
}

// Key identifies a configuration for selection, e.g. "DE@1.0.0".
func (c Configuration) Key() string {
	return strings.ToUpper(c.Country) + "@" + c.Version
}

// SemVersion parses Version.
func (c Configuration) SemVersion() (*semver.Version, error) {
	v, err := semver.NewVersion(c.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: version %q: %v", ErrInvalidConfiguration, c.Version, err)
	}
	return v, nil
}

// ActiveAt reports whether t falls in [ValidFrom, ValidTo). Unparsable
// bounds are treated as open.
func (c Configuration) ActiveAt(t time.Time) bool {
	if from, err := time.Parse(time.RFC3339, c.ValidFrom); err == nil && t.Before(from) {
		return false
	}
	if to, err := time.Parse(time.RFC3339, c.ValidTo); err == nil && !t.Before(to) {
		return false
	}
	return true
}

// Descriptor returns the descriptor called name.
func (c Configuration) Descriptor(name string) (jfn.Descriptor, bool) {
	for _, d := range c.Logic.JfnDescriptors {
		if d.Name == name {
			return d, true
		}
	}
	return jfn.Descriptor{}, false
}

// ParseJSON decodes a JSON array of configurations. A single object is
// accepted as a one-element array.
func ParseJSON(data []byte) ([]Configuration, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var single Configuration
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
		}
		return []Configuration{single}, nil
	}
	var configs []Configuration
	if err := json.Unmarshal(data, &configs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}
	return configs, nil
}
