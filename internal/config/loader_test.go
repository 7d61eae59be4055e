package config

import (
	"strings"
	"testing"
	"time"
)

const validScenario = `
name: soak
target:
  baseUrl: https://cloud.example.com
  timeout: 90s
seed: 42
concurrency: 8
rate: 50
duration: 10m
retry:
  maxRetries: 1
setup:
  - method: POST
    path: /v1/projects
    body: '{"name": "stress"}'
    expect: [201, 400]
operations:
  - name: instance-start
    weight: 4
    targetPrefix: inst
    targets: 4
    request:
      method: POST
      path: /v1/instances/{{target}}/start
  - name: ping
    weight: 1
    request:
      method: GET
      path: /v1/ping
    timeout: 5s
    think:
      min: 100ms
      max: 500ms
`

func TestParseValidScenario(t *testing.T) {
	sc, err := Parse([]byte(validScenario))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if sc.Name != "soak" {
		t.Errorf("Name = %q, want %q", sc.Name, "soak")
	}
	if sc.Seed != 42 {
		t.Errorf("Seed = %d, want 42", sc.Seed)
	}
	if sc.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", sc.Concurrency)
	}
	if got := sc.Duration.GetDuration(0); got != 10*time.Minute {
		t.Errorf("Duration = %v, want 10m", got)
	}
	if got := sc.Target.Timeout.GetDuration(0); got != 90*time.Second {
		t.Errorf("Target.Timeout = %v, want 90s", got)
	}
	if len(sc.Setup) != 1 || sc.Setup[0].Expect[1] != 400 {
		t.Errorf("Setup = %+v, want one request expecting [201 400]", sc.Setup)
	}
	if len(sc.Operations) != 2 {
		t.Fatalf("len(Operations) = %d, want 2", len(sc.Operations))
	}

	// Defaults.
	if sc.DrainTimeout.GetDuration(0) != DefaultDrainTimeout {
		t.Errorf("DrainTimeout = %v, want default %v", sc.DrainTimeout, DefaultDrainTimeout)
	}
	if sc.Retry.MaxRetries == nil || *sc.Retry.MaxRetries != 1 {
		t.Errorf("Retry.MaxRetries = %v, want 1", sc.Retry.MaxRetries)
	}
	if sc.Retry.BaseBackoff.GetDuration(0) != DefaultBaseBackoff {
		t.Errorf("Retry.BaseBackoff = %v, want default %v", sc.Retry.BaseBackoff, DefaultBaseBackoff)
	}
	if sc.Burst != 50 {
		t.Errorf("Burst = %d, want rate-derived 50", sc.Burst)
	}
	if got := sc.Operations[0].Timeout.GetDuration(0); got != 90*time.Second {
		t.Errorf("Operations[0].Timeout = %v, want inherited 90s", got)
	}
	if got := sc.Operations[1].Timeout.GetDuration(0); got != 5*time.Second {
		t.Errorf("Operations[1].Timeout = %v, want 5s", got)
	}
	if sc.Target.BreakerThreshold != DefaultBreakerThreshold {
		t.Errorf("BreakerThreshold = %d, want default %d", sc.Target.BreakerThreshold, DefaultBreakerThreshold)
	}
}

func TestParseSchemaRejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			"unknown top-level field",
			"wat: 1\ntarget: {baseUrl: http://x}\nconcurrency: 1\noperations: [{name: a, weight: 1, request: {method: GET, path: /}}]",
		},
		{
			"missing operations",
			"target: {baseUrl: http://x}\nconcurrency: 1",
		},
		{
			"empty operations",
			"target: {baseUrl: http://x}\nconcurrency: 1\noperations: []",
		},
		{
			"zero weight",
			"target: {baseUrl: http://x}\nconcurrency: 1\noperations: [{name: a, weight: 0, request: {method: GET, path: /}}]",
		},
		{
			"malformed duration",
			"target: {baseUrl: http://x}\nconcurrency: 1\nduration: ten minutes\noperations: [{name: a, weight: 1, request: {method: GET, path: /}}]",
		},
		{
			"expect status out of range",
			"target: {baseUrl: http://x}\nconcurrency: 1\noperations: [{name: a, weight: 1, request: {method: GET, path: /, expect: [700]}}]",
		},
		{
			"concurrency wrong type",
			"target: {baseUrl: http://x}\nconcurrency: lots\noperations: [{name: a, weight: 1, request: {method: GET, path: /}}]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() = nil error, want schema rejection")
			}
			if !strings.Contains(err.Error(), "schema") {
				t.Errorf("Parse() error = %v, want schema violation", err)
			}
		})
	}
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse([]byte("target: [unclosed"))
	if err == nil {
		t.Fatal("Parse() accepted malformed YAML")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("testdata/does-not-exist.yaml")
	if err == nil {
		t.Fatal("Load() = nil error for a missing file")
	}
}

func TestApplyDefaultsSeed(t *testing.T) {
	sc := &Scenario{Seed: 7}
	ApplyDefaults(sc)
	if sc.Seed != 7 {
		t.Errorf("Seed = %d after defaults, want 7 preserved", sc.Seed)
	}

	sc = &Scenario{}
	ApplyDefaults(sc)
	if sc.Seed == 0 {
		t.Error("Seed = 0 after defaults, want a generated seed")
	}
}

func TestTokenEnvFallback(t *testing.T) {
	t.Setenv(TokenEnvVar, "sekrit")

	sc := &Scenario{}
	ApplyDefaults(sc)
	if sc.Target.Token != "sekrit" {
		t.Errorf("Token = %q, want env fallback %q", sc.Target.Token, "sekrit")
	}

	sc = &Scenario{Target: TargetConfig{Token: "explicit"}}
	ApplyDefaults(sc)
	if sc.Target.Token != "explicit" {
		t.Errorf("Token = %q, want explicit value kept", sc.Target.Token)
	}
}
