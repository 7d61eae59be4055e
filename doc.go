// Package stampede drives configurable stress workloads against an HTTP
// control plane and reports what came back.
//
// A run takes a scenario: a weighted mix of API operations, a
// concurrency ceiling, an optional dispatch rate, and a duration or
// iteration budget. Operations are generated from a seeded RNG, so a
// run can be replayed exactly by reusing its seed. Every operation ends
// in exactly one of three buckets: success, expected failure (the
// target deliberately said no), or unexpected error.
//
// The stampede command is the usual entry point; this package is the
// programmatic one:
//
//	sc, err := stampede.Load("scenario.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	run, err := stampede.New(sc, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := run.Start(ctx)
//	fmt.Printf("state: %s\n", result.State)
//	fmt.Printf("p95:   %v\n", result.Stats.Latency.P95)
//
// Cancelling ctx stops dispatch and drains in-flight operations; the
// result covers everything that completed. A systemic failure (rejected
// credentials, unreachable target, failed setup) aborts the run and
// Start returns the cause alongside the partial result.
package stampede
