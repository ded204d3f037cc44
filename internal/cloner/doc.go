// Package cloner holds the vocabulary of the site-cloning service: clone jobs,
// asset references, fetched resources and manifests, the interfaces every
// subsystem is wired through, the error taxonomy reported to callers, and
// request validation.
//
// A clone job moves queued → fetching → publishing → completed, or to failed
// from any phase. Only the worker that dequeued a job writes its record; API
// handlers read it concurrently through the JobStore.
package cloner
