// Package preflight checks that notebooklm can run before it starts:
// the data directory is writable and has space, the descriptor limit is
// sane, and the embedding and chat backends answer with their models.
//
//	checker := preflight.New(preflight.WithOutput(os.Stdout))
//	results := checker.RunAll(ctx, cfg)
//	checker.PrintResults(results)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
