// Package conformance runs exported evaluation test cases against the
// engine and records expected results for new ones.
package conformance

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/TimurManjosov/cclengine/internal/jfn"
)

var ErrInvalidSuite = errors.New("invalid test suite")

// Suite is a test case file.
type Suite struct {
	Comment   string `json:"$comment,omitempty"`
	TestCases []Case `json:"testCases"`
}

// Case evaluates one function and states the expected result.
//
// With UseDefaultCCLConfiguration the function runs on the loaded
// configuration and Functions shadow its descriptors. Otherwise
// Functions are the only descriptors available.
type Case struct {
	Title                      string           `json:"title"`
	Functions                  []jfn.Descriptor `json:"functions,omitempty"`
	UseDefaultCCLConfiguration bool             `json:"useDefaultCCLConfiguration"`
	EvaluateFunction           Call             `json:"evaluateFunction"`
	Exp                        any              `json:"exp"`
}

type Call struct {
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

// Load decodes a suite and checks every case names a function.
func Load(r io.Reader) (*Suite, error) {
	var s Suite
	dec := json.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSuite, err)
	}
	for i, c := range s.TestCases {
		if strings.TrimSpace(c.EvaluateFunction.Name) == "" {
			return nil, fmt.Errorf("%w: test case %d (%q) has no function name", ErrInvalidSuite, i+1, c.Title)
		}
		if !c.UseDefaultCCLConfiguration && len(c.Functions) == 0 {
			return nil, fmt.Errorf("%w: test case %d (%q) has no functions to run", ErrInvalidSuite, i+1, c.Title)
		}
	}
	return &s, nil
}

func LoadFile(path string) (*Suite, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

// Write encodes s with two-space indentation.
func Write(w io.Writer, s *Suite) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(s)
}

// Filter keeps the cases whose title contains substr, ignoring case.
func (s *Suite) Filter(substr string) *Suite {
	if substr == "" {
		return s
	}
	out := &Suite{Comment: s.Comment}
	needle := strings.ToLower(substr)
	for _, c := range s.TestCases {
		if strings.Contains(strings.ToLower(c.Title), needle) {
			out.TestCases = append(out.TestCases, c)
		}
	}
	return out
}
