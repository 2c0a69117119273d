package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Supported formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatTOML = "toml"
)

// EncodeFunc serializes v.
type EncodeFunc func(v any) ([]byte, error)

var encoders = map[string]EncodeFunc{
	FormatYAML: encodeYAML,
	FormatJSON: encodeJSON,
	FormatTOML: encodeTOML,
}

// Formats returns the supported format names, sorted.
func Formats() []string {
	names := make([]string, 0, len(encoders))
	for name := range encoders {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Encode serializes v in the named format. The result always ends with a
// newline.
func Encode(format string, v any) ([]byte, error) {
	enc, ok := encoders[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("unknown output format %q (available: %s)", format, strings.Join(Formats(), ", "))
	}

	data, err := enc(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", format, err)
	}

	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}

	return data, nil
}

func encodeYAML(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func encodeJSON(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func encodeTOML(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
