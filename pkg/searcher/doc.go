// Package searcher is the embeddable entry point of fusesearch. It opens a
// project's index, assembles the four retrieval backends behind a search
// orchestrator and keeps both current as files change.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                            Engine                            │
//	│                                                              │
//	│   config ──► scanner ──► index.Stores ◄── index.Updater ◄─┐  │
//	│                 │          │   │   │                      │  │
//	│               exact  fulltext terms vectors            watcher
//	│                 └──────────┴───┬───┘                         │
//	│                       search.Orchestrator ──► telemetry      │
//	└──────────────────────────────────────────────────────────────┘
//
// # Usage
//
//	eng, err := searcher.Open(root)
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	results, err := eng.Search(ctx, "parse config", search.SearchOptions{Limit: 5})
//
// Build the index once with [Engine.Build]; [Engine.Watch] then applies
// file changes and invalidates the affected cache entries until its
// context ends.
//
// # Thread Safety
//
// Engine methods are safe for concurrent use. Index writes from several
// processes serialize on the index lock file.
package searcher
