// Package crawler implements the resumable hierarchical crawl engine for the
// Internal Revenue Code table of contents: the level table, the recursive
// orchestrator, the session state carried through the recursion, and the
// interfaces its collaborators (fetcher, navigator, extractor, writer,
// tracker, checkpoint store) satisfy.
package crawler
