package target

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/stress"
)

const (
	// maxBodyBytes caps how much of a response body is read for error
	// extraction. The remainder is drained so connections get reused.
	maxBodyBytes = 64 << 10

	// breakerCooldown is how long the circuit stays open before a
	// half-open probe is allowed through.
	breakerCooldown = 15 * time.Second
)

// Client issues scenario operations against the target API. It is safe
// for concurrent use; all fields are fixed after construction.
//
// A circuit breaker counts consecutive transport failures. Once it
// opens, invocations fail fast with a fatal verdict instead of piling
// timeouts onto a target that has stopped answering.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	headers map[string]string
	catalog Catalog
	setup   []config.RequestConfig
	runVars map[string]string
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

// NewClient builds a client for one run of the given scenario.
//
// Parameters:
//   - sc: the scenario, already defaulted and validated
//   - runID: identifier for this run, exposed to templates as {{run}}
//   - log: logger for breaker transitions and setup progress
//
// Returns:
//   - *Client: ready to serve as the run's invoker
func NewClient(sc *config.Scenario, runID string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("target")

	transport := &http.Transport{
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: sc.Target.InsecureSkipVerify,
		},
	}

	// Variable values may embed the run id, as in "stress-{{run}}".
	// Expanding it once here keeps every render of the variable equal.
	run := shortID(runID)
	vars := make(map[string]string, len(sc.Variables)+1)
	for k, v := range sc.Variables {
		vars[k] = strings.ReplaceAll(v, "{{run}}", run)
	}
	if _, ok := vars["run"]; !ok {
		vars["run"] = run
	}

	threshold := sc.Target.BreakerThreshold
	if threshold <= 0 {
		threshold = config.DefaultBreakerThreshold
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "target",
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		// Deadline and cancellation errors say more about the run than
		// about the target, so they do not charge the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})

	return &Client{
		http: &http.Client{
			Transport: transport,
			// Attempt deadlines come from the caller's context.
		},
		baseURL: strings.TrimRight(sc.Target.BaseURL, "/"),
		token:   sc.Target.Token,
		headers: sc.Target.Headers,
		catalog: BuildCatalog(sc),
		setup:   sc.Setup,
		runVars: vars,
		breaker: breaker,
		log:     log,
	}
}

// Invoke performs one operation attempt and classifies the result.
func (c *Client) Invoke(ctx context.Context, d stress.Descriptor) stress.Verdict {
	spec, ok := c.catalog[d.Kind]
	if !ok {
		return stress.Verdict{
			Class:  stress.ClassFatal,
			Reason: "unknown operation",
			Err:    fmt.Errorf("no operation named %q in catalog", d.Kind),
		}
	}

	req, err := c.newRequest(ctx, spec, d)
	if err != nil {
		return stress.Verdict{
			Class:  stress.ClassFatal,
			Reason: "invalid request",
			Err:    err,
		}
	}

	status, body, err := c.send(req)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return stress.Verdict{
				Class:  stress.ClassFatal,
				Reason: "target unreachable",
				Err:    fmt.Errorf("circuit breaker open: %w", err),
			}
		}
		return classifyTransportError(err)
	}
	return classify(status, body, spec.Expect)
}

// RunSetup executes the scenario's setup requests in order, stopping at
// the first failure. A response counts as a failure when its status is
// neither 2xx nor in the request's expect list, so setup steps can
// tolerate already-exists conflicts across repeated runs.
func (c *Client) RunSetup(ctx context.Context) error {
	for i, rc := range c.setup {
		spec := OperationSpec{
			Method:  strings.ToUpper(rc.Method),
			Path:    rc.Path,
			Body:    rc.Body,
			Headers: rc.Headers,
		}
		req, err := c.newRequest(ctx, spec, stress.Descriptor{})
		if err != nil {
			return fmt.Errorf("setup request %d: %w", i+1, err)
		}
		status, body, err := c.send(req)
		if err != nil {
			return fmt.Errorf("setup request %d (%s %s): %w", i+1, spec.Method, rc.Path, err)
		}
		if !setupAccepted(status, rc.Expect) {
			return fmt.Errorf("setup request %d (%s %s): unexpected status %d: %s",
				i+1, spec.Method, rc.Path, status, errorReason(status, body))
		}
		c.log.Info("setup request completed",
			zap.String("method", spec.Method),
			zap.String("path", rc.Path),
			zap.Int("status", status),
		)
	}
	return nil
}

func setupAccepted(status int, expect []int) bool {
	if status >= 200 && status < 300 {
		return true
	}
	for _, s := range expect {
		if s == status {
			return true
		}
	}
	return false
}

// newRequest renders the operation's templates for one descriptor and
// builds the outgoing request.
func (c *Client) newRequest(ctx context.Context, spec OperationSpec, d stress.Descriptor) (*http.Request, error) {
	path := render(spec.Path, d, c.runVars)
	body := render(spec.Body, d, c.runVars)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, spec.Method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request for %s %s: %w", spec.Method, path, err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range spec.Headers {
		req.Header.Set(k, v)
	}
	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	return req, nil
}

// send performs the round trip through the circuit breaker and reads
// the response body.
func (c *Client) send(req *http.Request) (int, []byte, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.http.Do(req)
	})
	if err != nil {
		return 0, nil, err
	}
	resp := res.(*http.Response)
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}
	// Drain anything past the cap so the connection can be reused.
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, body, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
