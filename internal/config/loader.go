package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/stampede/pkg/schemacheck"
)

// Defaults applied by ApplyDefaults. Retry and drain defaults mirror the
// engine's own fallbacks so a scenario loaded here and a Config built by
// hand behave the same.
const (
	DefaultTargetTimeout    = 120 * time.Second
	DefaultDrainTimeout     = 30 * time.Second
	DefaultMaxRetries       = 2
	DefaultBaseBackoff      = 250 * time.Millisecond
	DefaultMaxBackoff       = 5 * time.Second
	DefaultBreakerThreshold = 10
)

// TokenEnvVar is consulted for the bearer token when the scenario and
// flags leave it unset.
const TokenEnvVar = "STAMPEDE_TOKEN"

//go:embed scenario.schema.json
var scenarioSchemaJSON []byte

var scenarioChecker = schemacheck.MustCompile("scenario.schema.json", scenarioSchemaJSON)

// Load reads a scenario file, checks it against the scenario schema,
// decodes it, and applies defaults. Semantic validation is separate: call
// Validate on the result.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes scenario YAML. The raw document is validated against the
// embedded JSON schema before struct decoding, so typos in field names
// and malformed values surface with their locations instead of silently
// producing zero values.
func Parse(data []byte) (*Scenario, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing scenario YAML: %w", err)
	}
	if err := scenarioChecker.Validate(raw); err != nil {
		return nil, fmt.Errorf("scenario does not match schema: %w", err)
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("decoding scenario: %w", err)
	}
	ApplyDefaults(&sc)
	return &sc, nil
}

// ApplyDefaults fills unset fields in place. It is idempotent.
func ApplyDefaults(sc *Scenario) {
	if sc.Name == "" {
		sc.Name = "unnamed"
	}
	if sc.Seed == 0 {
		// A fresh seed per run; the run report records it so any run can
		// be replayed.
		sc.Seed = time.Now().UnixNano()
	}
	if sc.Target.Token == "" {
		sc.Target.Token = os.Getenv(TokenEnvVar)
	}
	if sc.Target.Timeout == 0 {
		sc.Target.Timeout = Duration(DefaultTargetTimeout)
	}
	if sc.Target.BreakerThreshold == 0 {
		sc.Target.BreakerThreshold = DefaultBreakerThreshold
	}
	if sc.DrainTimeout == 0 {
		sc.DrainTimeout = Duration(DefaultDrainTimeout)
	}
	if sc.Retry.MaxRetries == nil {
		n := DefaultMaxRetries
		sc.Retry.MaxRetries = &n
	}
	if sc.Retry.BaseBackoff == 0 {
		sc.Retry.BaseBackoff = Duration(DefaultBaseBackoff)
	}
	if sc.Retry.MaxBackoff == 0 {
		sc.Retry.MaxBackoff = Duration(DefaultMaxBackoff)
	}
	if sc.Rate > 0 && sc.Burst <= 0 {
		sc.Burst = int(sc.Rate)
		if sc.Burst < 1 {
			sc.Burst = 1
		}
	}
	for i := range sc.Operations {
		op := &sc.Operations[i]
		if op.Timeout == 0 {
			op.Timeout = sc.Target.Timeout
		}
	}
}
