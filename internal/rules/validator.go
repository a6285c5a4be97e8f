package rules

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Sentinel errors returned by Validate.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrUnsupportedEngine    = errors.New("unsupported engine")
)

// SupportedEngineVersions is the range of EngineVersion values this engine
// can execute.
const SupportedEngineVersions = "^1.0.0"

var (
	countryPattern    = regexp.MustCompile(`^[A-Z]{2}$`)
	engineConstraint  = mustConstraint(SupportedEngineVersions)
	descriptorPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*$`)
)

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate checks the configuration envelope. Descriptor logic is checked
// when it is compiled. It never mutates c.
func Validate(c Configuration) error {
	if c.Identifier == "" {
		return fmt.Errorf("%w: Identifier must not be empty", ErrInvalidConfiguration)
	}
	if c.Type != ConfigurationType {
		return fmt.Errorf("%w: %s: Type %q, want %q", ErrInvalidConfiguration, c.Identifier, c.Type, ConfigurationType)
	}
	if !countryPattern.MatchString(c.Country) {
		return fmt.Errorf("%w: %s: Country %q is not an ISO 3166-1 alpha-2 code", ErrInvalidConfiguration, c.Identifier, c.Country)
	}
	if _, err := c.SemVersion(); err != nil {
		return fmt.Errorf("%s: %w", c.Identifier, err)
	}
	if _, err := semver.NewVersion(c.SchemaVersion); err != nil {
		return fmt.Errorf("%w: %s: SchemaVersion %q is not a semantic version", ErrInvalidConfiguration, c.Identifier, c.SchemaVersion)
	}
	if err := validateEngine(c); err != nil {
		return err
	}
	if err := validateWindow(c); err != nil {
		return err
	}
	return validateDescriptors(c)
}

func validateEngine(c Configuration) error {
	if c.Engine != EngineName {
		return fmt.Errorf("%w: %s: Engine %q", ErrUnsupportedEngine, c.Identifier, c.Engine)
	}
	v, err := semver.NewVersion(c.EngineVersion)
	if err != nil {
		return fmt.Errorf("%w: %s: EngineVersion %q is not a semantic version", ErrInvalidConfiguration, c.Identifier, c.EngineVersion)
	}
	if !engineConstraint.Check(v) {
		return fmt.Errorf("%w: %s: EngineVersion %s outside %s", ErrUnsupportedEngine, c.Identifier, v, SupportedEngineVersions)
	}
	return nil
}

func validateWindow(c Configuration) error {
	from, err := time.Parse(time.RFC3339, c.ValidFrom)
	if err != nil {
		return fmt.Errorf("%w: %s: ValidFrom %q is not RFC 3339", ErrInvalidConfiguration, c.Identifier, c.ValidFrom)
	}
	to, err := time.Parse(time.RFC3339, c.ValidTo)
	if err != nil {
		return fmt.Errorf("%w: %s: ValidTo %q is not RFC 3339", ErrInvalidConfiguration, c.Identifier, c.ValidTo)
	}
	if !from.Before(to) {
		return fmt.Errorf("%w: %s: ValidFrom must be before ValidTo", ErrInvalidConfiguration, c.Identifier)
	}
	return nil
}

func validateDescriptors(c Configuration) error {
	if len(c.Logic.JfnDescriptors) == 0 {
		return fmt.Errorf("%w: %s: no JfnDescriptors", ErrInvalidConfiguration, c.Identifier)
	}
	seen := make(map[string]struct{}, len(c.Logic.JfnDescriptors))
	for i, d := range c.Logic.JfnDescriptors {
		if !descriptorPattern.MatchString(d.Name) {
			return fmt.Errorf("%w: %s: descriptor[%d] name %q is invalid", ErrInvalidConfiguration, c.Identifier, i, d.Name)
		}
		if _, dup := seen[d.Name]; dup {
			return fmt.Errorf("%w: %s: duplicate descriptor %q", ErrInvalidConfiguration, c.Identifier, d.Name)
		}
		seen[d.Name] = struct{}{}
		if d.Definition.Logic == nil {
			return fmt.Errorf("%w: %s: descriptor %q has no logic", ErrInvalidConfiguration, c.Identifier, d.Name)
		}
	}
	return nil
}
