package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/TimurManjosov/cclengine/internal/codec"
	"github.com/TimurManjosov/cclengine/internal/rules"
)

// FileStore reads a configuration array from a JSON or CBOR file. The
// file is read on every call, so a reload picks up edits. Writes are not
// supported.
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Path() string { return f.path }

func (f *FileStore) ListConfigurations(ctx context.Context) ([]rules.Configuration, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read configurations: %w", err)
	}
	format := codec.DetectFormat(data)
	if strings.EqualFold(filepath.Ext(f.path), ".cbor") {
		format = codec.FormatCBOR
	}
	configs, err := codec.DecodeConfigurations(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.path, err)
	}
	for _, c := range configs {
		if err := rules.Validate(c); err != nil {
			return nil, fmt.Errorf("%s: %w", f.path, err)
		}
	}
	sortConfigurations(configs)
	return configs, nil
}

func (f *FileStore) GetConfiguration(ctx context.Context, country, version string) (*rules.Configuration, error) {
	configs, err := f.ListConfigurations(ctx)
	if err != nil {
		return nil, err
	}
	want := Key(country, version)
	for _, c := range configs {
		if Key(c.Country, c.Version) == want {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (f *FileStore) UpsertConfiguration(context.Context, rules.Configuration) error {
	return fmt.Errorf("%w: %s", ErrReadOnly, f.path)
}

func (f *FileStore) DeleteConfiguration(context.Context, string, string) error {
	return fmt.Errorf("%w: %s", ErrReadOnly, f.path)
}

func (f *FileStore) Close() error {
	return nil
}
