// Package watcher provides file system watching with debouncing and
// ignore-aware filtering, feeding incremental reindexing.
//
// The package implements a hybrid strategy:
//   - Primary: fsnotify for event-based watching
//   - Fallback: polling for environments where fsnotify fails
//     (network mounts, containers with low inotify limits)
//
// Events are debounced to coalesce rapid changes from editors and git
// operations, and filtered against .gitignore and .mnemoignore rules.
// Edits to ignore files surface as OpIgnoreChange and rebuild the
// filter; edits to the project config surface as OpConfigChange.
//
// Usage:
//
//	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//
//	go w.Start(ctx, "/path/to/project")
//
//	for batch := range w.Events() {
//	    for _, event := range batch {
//	        switch event.Operation {
//	        case watcher.OpCreate, watcher.OpModify:
//	            // Reindex the file.
//	        case watcher.OpDelete:
//	            // Drop its chunks.
//	        case watcher.OpIgnoreChange:
//	            // Reconcile the index against the new rules.
//	        }
//	    }
//	}
package watcher
