// Package preflight validates that MnemoLite's backing services and
// the local machine are ready before serving or indexing.
//
// The package validates:
//   - PostgreSQL reachability and schema migration version
//   - Redis reachability (cache degrades gracefully when down)
//   - Embedding service availability (search degrades to lexical-only)
//   - Disk space (minimum 100MB)
//   - Available memory (minimum 1GB)
//   - File descriptor limits (minimum 1024)
//   - Log directory writability
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, cfg)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
