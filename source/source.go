// Package source decodes JSON and YAML documents into the plain values flowi
// validates: map[string]any, []any, string, bool, nil and json.Number.
//
// JSON input is read token by token with goccy/go-json so that duplicate object
// keys are rejected instead of silently overwritten.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Format identifies a document encoding.
type Format int

const (
	JSON Format = iota
	YAML
)

func (f Format) String() string {
	if f == YAML {
		return "yaml"
	}
	return "json"
}

// FormatOf guesses the format from a file extension. Unknown extensions are
// treated as JSON.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML
	}
	return JSON
}

var (
	// ErrDuplicateKey is returned when an object repeats a key.
	ErrDuplicateKey = errors.New("source: duplicate key")
	// ErrTrailingData is returned when input continues after the first value.
	ErrTrailingData = errors.New("source: trailing data after value")
	// ErrTooDeep is returned when nesting exceeds MaxDepth.
	ErrTooDeep = errors.New("source: nesting too deep")
)

// MaxDepth bounds object/array nesting.
const MaxDepth = 512

// Decode reads one document of format f from r.
func Decode(f Format, r io.Reader) (any, error) {
	if f == YAML {
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return YAMLBytes(b)
	}
	return JSONReader(r)
}

// JSONBytes decodes a JSON document.
func JSONBytes(b []byte) (any, error) { return JSONReader(bytes.NewReader(b)) }

// JSONReader decodes a JSON document from r.
func JSONReader(r io.Reader) (any, error) {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	v, err := readValue(dec, "", 0)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			return nil, ErrTrailingData
		}
		return nil, err
	}
	return v, nil
}

func readValue(dec *gojson.Decoder, path string, depth int) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	switch t := tok.(type) {
	case gojson.Delim:
		if depth >= MaxDepth {
			return nil, fmt.Errorf("%w at %q", ErrTooDeep, path)
		}
		switch t {
		case '{':
			return readObject(dec, path, depth+1)
		case '[':
			return readArray(dec, path, depth+1)
		}
		return nil, fmt.Errorf("source: unexpected delimiter %q at %q", rune(t), path)
	case gojson.Number:
		return json.Number(t), nil
	case string, bool, nil:
		return t, nil
	case float64:
		return t, nil
	}
	return nil, fmt.Errorf("source: unexpected token %T at %q", tok, path)
}

func readObject(dec *gojson.Decoder, path string, depth int) (map[string]any, error) {
	obj := map[string]any{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("source: expected key at %q, got %T", path, tok)
		}
		if _, dup := obj[key]; dup {
			return nil, fmt.Errorf("%w %q at %q", ErrDuplicateKey, key, path+"/"+key)
		}
		v, err := readValue(dec, path+"/"+key, depth)
		if err != nil {
			return nil, err
		}
		obj[key] = v
	}
	// closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return obj, nil
}

func readArray(dec *gojson.Decoder, path string, depth int) ([]any, error) {
	arr := []any{}
	for i := 0; dec.More(); i++ {
		v, err := readValue(dec, fmt.Sprintf("%s/%d", path, i), depth)
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return arr, nil
}

// YAMLBytes decodes a YAML document. Mapping keys are rendered as strings so the
// result uses map[string]any like JSON input. yaml.v3 already rejects
// duplicate mapping keys.
func YAMLBytes(b []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return normalizeYAML(v), nil
}

func normalizeYAML(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, x := range t {
			t[k] = normalizeYAML(x)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[fmt.Sprint(k)] = normalizeYAML(x)
		}
		return m
	case []any:
		for i, x := range t {
			t[i] = normalizeYAML(x)
		}
		return t
	}
	return v
}
