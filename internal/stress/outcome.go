package stress

import "time"

// Class classifies the result of a single invocation attempt.
type Class int32

const (
	// ClassSuccess indicates the attempt completed as intended.
	ClassSuccess Class = iota
	// ClassExpectedFailure indicates the target rejected the operation for
	// a legitimate reason, e.g. deleting a disk that is still attached.
	// Expected failures are not errors and are never retried.
	ClassExpectedFailure
	// ClassTransient indicates a failure that may succeed on retry, such as
	// an attempt timeout, a 5xx response, or a dropped connection.
	ClassTransient
	// ClassFatal indicates a failure that makes further load pointless,
	// such as rejected credentials or an unreachable target.
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassSuccess:
		return "success"
	case ClassExpectedFailure:
		return "expected-failure"
	case ClassTransient:
		return "transient"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Verdict is the classified result of one invocation attempt.
type Verdict struct {
	Class Class

	// Reason is a short classification detail, e.g. the API error code of
	// an expected failure or "drain timeout" for an abandoned operation.
	Reason string

	// Err is the underlying error for transient and fatal verdicts.
	Err error
}

// Status is the terminal disposition of a logical operation, after all
// retries have been resolved.
type Status int32

const (
	// StatusSuccess indicates the operation eventually succeeded.
	StatusSuccess Status = iota
	// StatusExpectedFailure indicates the target legitimately rejected the
	// operation.
	StatusExpectedFailure
	// StatusError indicates an unexpected error: transient failures that
	// exhausted the retry budget, fatal failures, or abandonment at drain.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusExpectedFailure:
		return "expected-failure"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the single terminal record of a logical operation. Exactly one
// Outcome exists per dispatched Descriptor, no matter how many attempts
// were made on its behalf.
type Outcome struct {
	// Seq and Kind identify the originating descriptor.
	Seq  uint64
	Kind string

	// Target is the resource the operation acted on, if any.
	Target string

	Status Status

	// Latency is cumulative wall clock from just before the first attempt
	// to completion of the terminal attempt, including backoff waits.
	Latency time.Duration

	// Attempts is the number of invocation attempts made. Zero only when
	// the operation was cancelled before its first attempt.
	Attempts int

	// Reason carries the classification detail of the terminal attempt.
	Reason string

	// Err is the terminal error for StatusError outcomes, nil otherwise.
	Err error
}
