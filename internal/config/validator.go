package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError is one semantic problem in a scenario.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors collects every problem found in one pass, so a bad
// scenario file is fixed in one round trip rather than one error at a
// time.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add appends an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors reports whether anything was collected.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// Validate checks the cross-field semantics the schema cannot express.
// Returns nil when valid, or a *ValidationErrors carrying every problem.
//
// Run it after ApplyDefaults; several checks assume defaults are in
// place.
func (sc *Scenario) Validate() error {
	errs := &ValidationErrors{}

	if sc.Target.BaseURL == "" {
		errs.Add("target.baseUrl", "base URL is required")
	} else if u, err := url.Parse(sc.Target.BaseURL); err != nil {
		errs.Add("target.baseUrl", fmt.Sprintf("invalid URL: %v", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs.Add("target.baseUrl", fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}

	if sc.Concurrency <= 0 {
		errs.Add("concurrency", "must be greater than 0")
	}
	if sc.Rate < 0 {
		errs.Add("rate", "cannot be negative")
	}
	if sc.Duration == 0 && sc.Iterations == 0 {
		errs.Add("", "either duration or iterations must be set, or the run would never end")
	}
	if sc.Duration < 0 {
		errs.Add("duration", "cannot be negative")
	}
	if sc.DrainTimeout <= 0 {
		errs.Add("drainTimeout", "must be greater than 0")
	}
	if sc.Retry.MaxRetries != nil && *sc.Retry.MaxRetries < 0 {
		errs.Add("retry.maxRetries", "cannot be negative")
	}
	if sc.Retry.BaseBackoff < 0 {
		errs.Add("retry.baseBackoff", "cannot be negative")
	}
	if sc.Retry.MaxBackoff > 0 && sc.Retry.MaxBackoff < sc.Retry.BaseBackoff {
		errs.Add("retry.maxBackoff", "cannot be less than baseBackoff")
	}

	for i, req := range sc.Setup {
		validateRequest(fmt.Sprintf("setup[%d]", i), &req, errs)
	}

	if len(sc.Operations) == 0 {
		errs.Add("operations", "at least one operation is required")
	}
	names := map[string]bool{}
	for i, op := range sc.Operations {
		prefix := fmt.Sprintf("operations[%d]", i)
		if op.Name == "" {
			errs.Add(prefix+".name", "name is required")
		} else if names[op.Name] {
			errs.Add(prefix+".name", fmt.Sprintf("duplicate operation name %q", op.Name))
		}
		names[op.Name] = true

		if op.Weight <= 0 {
			errs.Add(prefix+".weight", "weight must be greater than 0")
		}
		if op.Targets < 0 {
			errs.Add(prefix+".targets", "cannot be negative")
		}
		if op.Targets > 0 && op.TargetPrefix == "" {
			errs.Add(prefix+".targetPrefix", "required when targets is set")
		}
		if op.Timeout < 0 {
			errs.Add(prefix+".timeout", "cannot be negative")
		}
		if op.Think != nil {
			if op.Think.Max <= 0 {
				errs.Add(prefix+".think.max", "must be greater than 0")
			}
			if op.Think.Min < 0 {
				errs.Add(prefix+".think.min", "cannot be negative")
			}
			if op.Think.Min > op.Think.Max {
				errs.Add(prefix+".think", "min cannot exceed max")
			}
		}
		validateRequest(prefix+".request", &op.Request, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateRequest(prefix string, req *RequestConfig, errs *ValidationErrors) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		errs.Add(prefix+".method", "method is required")
	} else if !validMethods[method] {
		errs.Add(prefix+".method", fmt.Sprintf("invalid HTTP method: %s", req.Method))
	}

	if req.Path == "" {
		errs.Add(prefix+".path", "path is required")
	} else if !strings.HasPrefix(req.Path, "/") {
		errs.Add(prefix+".path", "path must start with /")
	} else if err := checkTemplate(req.Path); err != nil {
		errs.Add(prefix+".path", err.Error())
	}

	if req.Body != "" {
		if err := checkTemplate(req.Body); err != nil {
			errs.Add(prefix+".body", err.Error())
		}
	}

	for i, status := range req.Expect {
		if status < 100 || status > 599 {
			errs.Add(fmt.Sprintf("%s.expect[%d]", prefix, i), fmt.Sprintf("not an HTTP status: %d", status))
		}
	}
}

// checkTemplate verifies that {{ and }} pair up in order.
func checkTemplate(s string) error {
	for {
		open := strings.Index(s, "{{")
		end := strings.Index(s, "}}")
		if open == -1 && end == -1 {
			return nil
		}
		if open == -1 || end < open {
			return fmt.Errorf("unbalanced template braces")
		}
		s = s[end+2:]
	}
}
