// Package modelfile reads and writes model specifications as YAML or JSON.
package modelfile

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/fuzzyprice/internal/domain"
)

// Load reads and validates the model file at path.
func Load(path string) (*domain.ModelSpec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer f.Close()

	spec, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

// Decode parses a YAML or JSON model definition. Unknown fields are rejected.
func Decode(r io.Reader) (*domain.ModelSpec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var spec domain.ModelSpec
	if err := dec.Decode(&spec); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("model file is empty")
		}
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}

	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model: %w", err)
	}
	return &spec, nil
}

// Parse is Decode over a byte slice.
func Parse(data []byte) (*domain.ModelSpec, error) {
	return Decode(bytes.NewReader(data))
}

// Encode writes spec as YAML.
func Encode(w io.Writer, spec *domain.ModelSpec) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(spec); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return enc.Close()
}
