// Package preflight answers "can fusesearch index and serve this project?"
// before anything is written. Checks cover free disk space, write access
// to .fusesearch/, the open file limit against the directories the watcher
// will hold, the merged configuration, and the state of the index and its
// lock.
//
//	checker := preflight.New(preflight.WithOutput(os.Stderr))
//	results := checker.RunAll(ctx, root)
//	checker.PrintResults(results)
//	if checker.HasCriticalFailures(results) {
//		return errNotReady
//	}
//
// Only required checks can fail a project; the rest warn.
package preflight
