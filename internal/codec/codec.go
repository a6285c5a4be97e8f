// Package codec moves configuration documents and evaluation results
// between their JSON, CBOR and canonical JSON encodings.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/TimurManjosov/cclengine/internal/rules"
	"github.com/fxamacker/cbor/v2"
	"github.com/gowebpki/jcs"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

var ErrUnsupportedFormat = errors.New("unsupported format")

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	// Core deterministic encoding keeps CBOR output stable for equal trees.
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// ParseFormat accepts "json" or "cbor" in any case.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCBOR:
		return FormatCBOR, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// DetectFormat treats data starting with a JSON array or object as JSON
// and everything else as CBOR.
func DetectFormat(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return FormatJSON
	}
	return FormatCBOR
}

// DecodeTree decodes data into the generic value tree used by the
// evaluator (see jfn.Normalize).
func DecodeTree(data []byte, format Format) (any, error) {
	var tree any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatCBOR:
		if err := decMode.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("decode cbor: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return jfn.Normalize(tree), nil
}

// EncodeTree encodes a generic value tree.
func EncodeTree(tree any, format Format) ([]byte, error) {
	tree = jfn.ToJSON(tree)
	switch format {
	case FormatJSON:
		return json.Marshal(tree)
	case FormatCBOR:
		return encMode.Marshal(tree)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// DecodeConfigurations reads a configuration array in either encoding.
// CBOR is a transcoding of the JSON document, so both paths end in
// rules.ParseJSON.
func DecodeConfigurations(data []byte, format Format) ([]rules.Configuration, error) {
	if format == FormatJSON {
		return rules.ParseJSON(data)
	}
	tree, err := DecodeTree(data, format)
	if err != nil {
		return nil, err
	}
	asJSON, err := json.Marshal(tree)
	if err != nil {
		return nil, err
	}
	return rules.ParseJSON(asJSON)
}

// EncodeConfigurations writes configs as a JSON array or its CBOR
// transcoding.
func EncodeConfigurations(configs []rules.Configuration, format Format) ([]byte, error) {
	asJSON, err := json.Marshal(configs)
	if err != nil {
		return nil, err
	}
	if format == FormatJSON {
		return asJSON, nil
	}
	tree, err := DecodeTree(asJSON, FormatJSON)
	if err != nil {
		return nil, err
	}
	return EncodeTree(tree, format)
}

// Canonical renders v as RFC 8785 canonical JSON. Equal values always
// produce identical bytes.
func Canonical(v any) ([]byte, error) {
	raw, err := json.Marshal(jfn.ToJSON(v))
	if err != nil {
		return nil, err
	}
	return jcs.Transform(raw)
}
