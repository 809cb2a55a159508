package modelfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/fuzzyprice/internal/landpricing"
	"github.com/opensource-finance/fuzzyprice/internal/rules"
)

const tipsYAML = `
id: tips
name: Tipping
version: "1"
enabled: true
variables:
  - name: service
    kind: input
    universe: {min: 0, max: 10, step: 0.1}
    breakpoints:
      points: [0, 5, 10]
      labels: [poor, good]
      slope: 3
  - name: tip
    kind: output
    universe: {min: 0, max: 30, step: 0.5}
    categories:
      - {label: low, width: 5, slope: 3, center: 5}
      - {label: high, width: 5, slope: 3, center: 25}
rules:
  - id: bad
    when: service.poor
    then: {variable: tip, category: low}
  - id: great
    when: service.good
    then: {variable: tip, category: high}
`

func TestParseYAML(t *testing.T) {
	spec, err := Parse([]byte(tipsYAML))
	require.NoError(t, err)

	assert.Equal(t, "tips", spec.ID)
	assert.Equal(t, "1", spec.Version)
	require.Len(t, spec.Variables, 2)
	require.NotNil(t, spec.Variables[0].Breakpoints)
	assert.Equal(t, []string{"poor", "good"}, spec.Variables[0].Breakpoints.Labels)
	assert.Equal(t, "service.good", spec.Rules[1].When)

	_, err = rules.Build(spec)
	assert.NoError(t, err)
}

func TestParseJSON(t *testing.T) {
	data := `{"id": "tips", "version": "1", "variables": [` +
		`{"name": "service", "kind": "input", "universe": {"min": 0, "max": 10, "step": 1},` +
		` "categories": [{"label": "good", "width": 2, "slope": 3, "center": 8}]},` +
		`{"name": "tip", "kind": "output", "universe": {"min": 0, "max": 30, "step": 1},` +
		` "categories": [{"label": "high", "width": 5, "slope": 3, "center": 25}]}],` +
		` "rules": [{"when": "service.good", "then": {"variable": "tip", "category": "high"}}]}`

	spec, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, 8.0, spec.Variables[0].Categories[0].Center)
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"empty", "", "empty"},
		{"syntax", "id: [", "parse"},
		{"unknown field", "id: x\nversion: '1'\ncolour: red\n", "parse"},
		{"missing id", strings.Replace(tipsYAML, "id: tips", "", 1), "invalid model"},
		{"bad kind", strings.Replace(tipsYAML, "kind: output", "kind: result", 1), "invalid model"},
		{"no rules", tipsYAML[:strings.Index(tipsYAML, "rules:")], "invalid model"},
		{"no condition", strings.Replace(tipsYAML, "when: service.poor", "when: ''", 1), "invalid model"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestZeroWidthPassesStructuralValidation(t *testing.T) {
	// Numeric parameters are rejected by the model builder, not the parser.
	spec, err := Parse([]byte(strings.Replace(tipsYAML, "width: 5, slope: 3, center: 5", "width: 0, slope: 3, center: 5", 1)))
	require.NoError(t, err)

	_, err = rules.Build(spec)
	assert.Error(t, err)
}

func TestEncodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, landpricing.DefaultSpec()))

	path := filepath.Join(t.TempDir(), "land.yaml")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	spec, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, landpricing.DefaultSpec().Rules, spec.Rules)

	m, err := rules.Build(spec)
	require.NoError(t, err)
	assert.Len(t, m.Rules(), 5)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
