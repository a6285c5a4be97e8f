package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/TimurManjosov/cclengine/internal/rules"
)

var (
	ErrNotFound = errors.New("configuration not found")
	ErrReadOnly = errors.New("store is read-only")
)

// Store defines the persistence operations for rule configurations.
// Implementations must be safe for concurrent use.
type Store interface {
	// ListConfigurations returns every stored configuration ordered by
	// country, then version. An empty store returns an empty slice.
	ListConfigurations(ctx context.Context) ([]rules.Configuration, error)

	// GetConfiguration returns the configuration for country and a
	// semver-equal version, or ErrNotFound.
	GetConfiguration(ctx context.Context, country, version string) (*rules.Configuration, error)

	// UpsertConfiguration validates c and stores it, replacing a
	// configuration with the same key.
	UpsertConfiguration(ctx context.Context, c rules.Configuration) error

	// DeleteConfiguration is idempotent.
	DeleteConfiguration(ctx context.Context, country, version string) error

	Close() error
}

// Entry is a stored configuration with its bookkeeping.
type Entry struct {
	Configuration rules.Configuration `json:"configuration"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

// Key normalizes country and version so "de"/"1.0" and "DE"/"1.0.0" land
// on the same entry.
func Key(country, version string) string {
	if v, err := semver.NewVersion(version); err == nil {
		version = v.String()
	}
	return strings.ToUpper(strings.TrimSpace(country)) + "@" + version
}

func sortConfigurations(configs []rules.Configuration) {
	sort.SliceStable(configs, func(i, j int) bool {
		a, b := configs[i], configs[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		va, errA := semver.NewVersion(a.Version)
		vb, errB := semver.NewVersion(b.Version)
		if errA != nil || errB != nil {
			return a.Version < b.Version
		}
		return va.LessThan(vb)
	})
}
