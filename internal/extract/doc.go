// Package extract finds the resources an HTML or CSS document depends on.
//
// The same walker drives discovery and rewriting: RewriteHTML and RewriteCSS
// call a Visitor for every reference position, and a Visitor that reports a
// replacement edits the reference in place. Extraction is a Visitor that only
// records, so the set of positions the pipeline localizes and the publisher
// maps to CDN URLs is always the set the extractor discovered.
package extract
