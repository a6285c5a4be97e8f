package rules

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed bundled/*.json
var bundledFS embed.FS

// Bundled returns the configurations shipped with the binary, ordered by
// file name.
func Bundled() ([]Configuration, error) {
	names, err := fs.Glob(bundledFS, "bundled/*.json")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	var out []Configuration
	for _, name := range names {
		data, err := bundledFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		configs, err := ParseJSON(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, configs...)
	}
	return out, nil
}
