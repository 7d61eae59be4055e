package target

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/stampede/internal/stress"
)

// maxReasonLen bounds how much of a server message ends up in reports.
const maxReasonLen = 120

// classify maps an HTTP response to a verdict.
//
// The taxonomy follows what each status says about the run:
//
//   - 2xx: the operation took effect.
//   - 401/403: credentials are wrong for every future request too, so
//     the whole run is doomed.
//   - 408/429/5xx: the target hiccupped; the same request may well
//     succeed on retry.
//   - remaining 4xx: the target deliberately rejected this particular
//     request (conflict, not found, bad state).
//
// Statuses listed in the operation's expect set are counted as expected
// failures even when the table above would call them transient.
func classify(status int, body []byte, expect map[int]bool) stress.Verdict {
	if status >= 200 && status < 300 {
		return stress.Verdict{Class: stress.ClassSuccess}
	}
	if expect[status] {
		return stress.Verdict{
			Class:  stress.ClassExpectedFailure,
			Reason: errorReason(status, body),
		}
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return stress.Verdict{
			Class:  stress.ClassFatal,
			Reason: "credentials rejected",
			Err:    fmt.Errorf("target rejected credentials: status %d", status),
		}
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500:
		return stress.Verdict{
			Class:  stress.ClassTransient,
			Reason: errorReason(status, body),
			Err:    fmt.Errorf("status %d: %s", status, errorReason(status, body)),
		}
	case status >= 400:
		return stress.Verdict{
			Class:  stress.ClassExpectedFailure,
			Reason: errorReason(status, body),
		}
	default:
		return stress.Verdict{
			Class:  stress.ClassExpectedFailure,
			Reason: fmt.Sprintf("status %d", status),
		}
	}
}

// classifyTransportError maps a failed round trip to a verdict. Context
// cancellation is reported as transient; the executor recognizes its own
// cancellation at the top of the retry loop and converts it there.
func classifyTransportError(err error) stress.Verdict {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return stress.Verdict{
			Class:  stress.ClassTransient,
			Reason: "attempt timeout",
			Err:    err,
		}
	case errors.Is(err, context.Canceled):
		return stress.Verdict{
			Class:  stress.ClassTransient,
			Reason: "request cancelled",
			Err:    err,
		}
	default:
		return stress.Verdict{
			Class:  stress.ClassTransient,
			Reason: "transport error",
			Err:    err,
		}
	}
}

// errorReason digs a human-readable reason out of an error response
// body. Control planes in the wild disagree on the field name, so a few
// common shapes are tried before falling back to the status text.
func errorReason(status int, body []byte) string {
	for _, path := range []string{"error_code", "error.code", "code"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.String() != "" {
			return truncate(v.String())
		}
	}
	for _, path := range []string{"message", "error.message", "error"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.String() != "" {
			return truncate(v.String())
		}
	}
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("status %d (%s)", status, text)
	}
	return fmt.Sprintf("status %d", status)
}

func truncate(s string) string {
	if len(s) <= maxReasonLen {
		return s
	}
	return s[:maxReasonLen] + "..."
}
