// Package config loads, defaults, and validates stress scenario files.
package config

import (
	"time"
)

// Scenario is the root configuration for a stress run.
//
// Example YAML:
//
//	name: control-plane-soak
//	target:
//	  baseUrl: https://cloud.example.com
//	  timeout: 120s
//	concurrency: 8
//	rate: 50
//	duration: 10m
//	operations:
//	  - name: instance-start
//	    weight: 4
//	    targetPrefix: inst
//	    targets: 4
//	    request:
//	      method: POST
//	      path: /v1/instances/{{target}}/start
type Scenario struct {
	// Name of the scenario (for reporting)
	Name string `json:"name" yaml:"name"`

	// Description of the scenario (optional)
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Target describes the system under stress
	Target TargetConfig `json:"target" yaml:"target"`

	// Seed drives workload selection. The same seed replays the same
	// operation sequence. 0 or absent picks a fresh seed per run.
	Seed int64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// Concurrency is the maximum number of in-flight operations
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// Rate caps dispatch at this many operations per second (0 = unlimited)
	Rate float64 `json:"rate,omitempty" yaml:"rate,omitempty"`

	// Burst is the rate limiter's token bucket size (default: rate, min 1)
	Burst int `json:"burst,omitempty" yaml:"burst,omitempty"`

	// Duration stops dispatch after this wall-clock budget
	Duration Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Iterations caps the total number of dispatched operations.
	// At least one of duration/iterations must be set.
	Iterations uint64 `json:"iterations,omitempty" yaml:"iterations,omitempty"`

	// DrainTimeout bounds the wait for in-flight operations at shutdown
	// (default: 30s)
	DrainTimeout Duration `json:"drainTimeout,omitempty" yaml:"drainTimeout,omitempty"`

	// Retry controls transient-failure retries
	Retry RetryConfig `json:"retry,omitempty" yaml:"retry,omitempty"`

	// Variables are available to all request templates
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Setup requests run once, in order, before any load is dispatched.
	// A failing setup request aborts the run.
	Setup []RequestConfig `json:"setup,omitempty" yaml:"setup,omitempty"`

	// Operations is the weighted mix of stress operations
	Operations []OperationConfig `json:"operations" yaml:"operations"`
}

// TargetConfig describes the API under stress.
type TargetConfig struct {
	// BaseURL is prepended to every request path
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`

	// Token is the bearer token presented on every request. Falls back to
	// the STAMPEDE_TOKEN environment variable when empty.
	Token string `json:"token,omitempty" yaml:"token,omitempty"`

	// Timeout is the default per-attempt timeout (default: 120s)
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	// Headers are applied to every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// BreakerThreshold is the number of consecutive transport failures
	// after which the target is declared unreachable and the run aborts
	// (default: 10)
	BreakerThreshold int `json:"breakerThreshold,omitempty" yaml:"breakerThreshold,omitempty"`
}

// RetryConfig bounds retries of transient failures.
type RetryConfig struct {
	// MaxRetries after the first attempt (default: 2; 0 disables retries)
	MaxRetries *int `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`

	// BaseBackoff before the first retry; doubled per retry (default: 250ms)
	BaseBackoff Duration `json:"baseBackoff,omitempty" yaml:"baseBackoff,omitempty"`

	// MaxBackoff caps the backoff growth (default: 5s)
	MaxBackoff Duration `json:"maxBackoff,omitempty" yaml:"maxBackoff,omitempty"`
}

// OperationConfig defines one weighted operation kind.
type OperationConfig struct {
	// Name identifies the operation in statistics and logs
	Name string `json:"name" yaml:"name"`

	// Weight sets the relative selection frequency (must be positive)
	Weight int `json:"weight" yaml:"weight"`

	// TargetPrefix and Targets define the resource pool this operation
	// rotates over: targets 4 with prefix "inst" addresses inst0..inst3.
	// Operations sharing a prefix contend for the same resources.
	TargetPrefix string `json:"targetPrefix,omitempty" yaml:"targetPrefix,omitempty"`
	Targets      int    `json:"targets,omitempty" yaml:"targets,omitempty"`

	// Request is the HTTP template for this operation
	Request RequestConfig `json:"request" yaml:"request"`

	// Timeout overrides the target's default per-attempt timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Think pauses a random duration after each operation, while its
	// concurrency slot is still held
	Think *ThinkConfig `json:"think,omitempty" yaml:"think,omitempty"`

	// Params are extra template variables for this operation's request
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// RequestConfig is an HTTP request template. Paths and bodies support
// {{variable}} substitution; see target.Catalog for the variables
// available at execution time.
type RequestConfig struct {
	// Method is the HTTP method (GET, POST, PUT, DELETE, ...)
	Method string `json:"method" yaml:"method"`

	// Path is appended to the target baseUrl
	Path string `json:"path" yaml:"path"`

	// Body is the request body template (optional)
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// Headers are request-specific headers
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Expect lists additional statuses treated as expected for this
	// request, on top of the standard classification. Setup requests use
	// it to tolerate already-exists responses.
	Expect []int `json:"expect,omitempty" yaml:"expect,omitempty"`
}

// ThinkConfig bounds the random pause after an operation.
type ThinkConfig struct {
	Min Duration `json:"min" yaml:"min"`
	Max Duration `json:"max" yaml:"max"`
}

// Duration is a time.Duration that marshals to and from "30s"-style
// strings in both JSON and YAML.
type Duration time.Duration

// GetDuration returns the duration, or defaultValue when unset.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "" || s == "null" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
