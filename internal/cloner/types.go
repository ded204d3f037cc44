package cloner

import (
	"net/http"
	"time"
)

// JobStatus represents the lifecycle phase of a clone job.
type JobStatus string

// Job status values persisted in the job registry.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusFetching   JobStatus = "fetching"
	JobStatusPublishing JobStatus = "publishing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// RenderMode selects how the root document is obtained.
type RenderMode string

// Supported render modes.
const (
	RenderAuto   RenderMode = "auto"
	RenderAlways RenderMode = "always"
	RenderNever  RenderMode = "never"
)

// AssetKind classifies an asset reference.
type AssetKind string

// Asset kinds discovered by the extractor.
const (
	AssetStylesheet AssetKind = "stylesheet"
	AssetScript     AssetKind = "script"
	AssetImage      AssetKind = "image"
	AssetFont       AssetKind = "font"
	AssetMedia      AssetKind = "media"
	AssetOther      AssetKind = "other"
)

// RewriteRules carries the caller-supplied content substitutions for a job.
type RewriteRules struct {
	ContactNumber   string `json:"contact_number,omitempty"`
	PhoneNumber     string `json:"phone_number,omitempty"`
	TrackingID      string `json:"tracking_id,omitempty"`
	NeutralizeLinks bool   `json:"neutralize_links"`
	Cleanup         bool   `json:"cleanup"`
}

// CloneRequest captures everything the client asked for.
type CloneRequest struct {
	URL            string       `json:"url"`
	Name           string       `json:"name"`
	Rules          RewriteRules `json:"rules"`
	OptimizeImages bool         `json:"optimize_images"`
	RenderMode     RenderMode   `json:"render_mode"`
}

// Job is the registry record for a submitted clone request.
type Job struct {
	ID        string       `json:"id"`
	Status    JobStatus    `json:"status"`
	Submitted time.Time    `json:"submitted_at"`
	Started   *time.Time   `json:"started_at,omitempty"`
	Finished  *time.Time   `json:"finished_at,omitempty"`
	ErrorKind ErrorKind    `json:"error_kind,omitempty"`
	ErrorText string       `json:"error_text,omitempty"`
	Request   CloneRequest `json:"request"`
	Progress  JobProgress  `json:"progress"`
	Result    *JobResult   `json:"result,omitempty"`
}

// JobProgress reports asset-level progress while a job runs.
type JobProgress struct {
	AssetsTotal  int `json:"assets_total"`
	AssetsDone   int `json:"assets_done"`
	AssetsFailed int `json:"assets_failed"`
	Percent      int `json:"percent"`
}

// NewJobProgress derives the percentage from the counters.
func NewJobProgress(total, done, failed int) JobProgress {
	percent := 0
	if total > 0 {
		percent = done * 100 / total
	}
	return JobProgress{AssetsTotal: total, AssetsDone: done, AssetsFailed: failed, Percent: percent}
}

// JobResult is attached to a completed job.
type JobResult struct {
	PublicURL    string         `json:"public_url"`
	ManifestURL  string         `json:"manifest_url"`
	Counts       ManifestCounts `json:"counts"`
	FailedAssets []FailedAsset  `json:"failed_assets,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
}

// FailedAsset records an asset that could not be fetched or uploaded.
type FailedAsset struct {
	URL    string `json:"url"`
	Name   string `json:"name,omitempty"`
	Reason string `json:"reason"`
}

// AssetRef is a discovered dependency of a document.
type AssetRef struct {
	Kind AssetKind `json:"kind"`
	// Raw is the reference exactly as it appeared in the source.
	Raw string `json:"raw"`
	// URL is the resolved absolute URL and the deduplication key.
	URL string `json:"url"`
	// Parent is the URL of the document that referenced the asset.
	Parent string `json:"parent,omitempty"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	JobID      string
	URL        string
	Referer    string
	Timeout    time.Duration
	MaxRetries int
	MaxBytes   int64
	Headers    http.Header
}

// FetchedResource is the outcome of a successful fetch.
type FetchedResource struct {
	URL          string        `json:"url"`
	FinalURL     string        `json:"final_url"`
	StatusCode   int           `json:"status_code"`
	ContentType  string        `json:"content_type"`
	Body         []byte        `json:"-"`
	Size         int64         `json:"size"`
	Attempts     int           `json:"attempts"`
	Duration     time.Duration `json:"duration"`
	UsedRenderer bool          `json:"used_renderer"`
}

// Resource is a stored file of a cloned site, keyed by its job-unique name.
type Resource struct {
	Name        string
	URL         string
	Kind        AssetKind
	ContentType string
	Data        []byte
}

// RewriteCounters reports what the content rewriter touched.
type RewriteCounters struct {
	Neutralized      int `json:"neutralized"`
	Preserved        int `json:"preserved"`
	ContactsReplaced int `json:"contacts_replaced"`
	PhonesReplaced   int `json:"phones_replaced"`
	TrackingReplaced int `json:"tracking_replaced"`
	CleanupRemovals  int `json:"cleanup_removals"`
}

// ManifestCounts aggregates a clone job outcome.
type ManifestCounts struct {
	TotalAssets     int `json:"total_assets"`
	Succeeded       int `json:"succeeded"`
	Failed          int `json:"failed"`
	Neutralized     int `json:"neutralized"`
	Preserved       int `json:"preserved"`
	Optimized       int `json:"optimized"`
	UploadFailed    int `json:"upload_failed,omitempty"`
	UploadUnchanged int `json:"upload_unchanged,omitempty"`
}

// ManifestEntry describes one resource in a manifest.
type ManifestEntry struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	Kind        AssetKind `json:"kind"`
	ContentType string    `json:"content_type,omitempty"`
	Size        int64     `json:"size"`
	SHA256      string    `json:"sha256,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	Optimized   bool      `json:"optimized,omitempty"`
	Error       string    `json:"error,omitempty"`
	PublicURL   string    `json:"public_url,omitempty"`
	Upload      PutStatus `json:"upload,omitempty"`
	UploadError string    `json:"upload_error,omitempty"`
}

// Manifest is the final record of a clone job.
type Manifest struct {
	Name         string          `json:"name"`
	SourceURL    string          `json:"source_url"`
	FinalURL     string          `json:"final_url"`
	Rendered     bool            `json:"rendered"`
	DocumentName string          `json:"document"`
	DocumentSize int64           `json:"document_size"`
	Resources    []ManifestEntry `json:"resources"`
	Counts       ManifestCounts  `json:"counts"`
	Rewrites     RewriteCounters `json:"rewrites"`
	Warnings     []string        `json:"warnings,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	PublishedAt  *time.Time      `json:"published_at,omitempty"`
	PublicURL    string          `json:"public_url,omitempty"`
}

// FailedAssets lists entries that failed to fetch or upload.
func (m Manifest) FailedAssets() []FailedAsset {
	var out []FailedAsset
	for _, entry := range m.Resources {
		switch {
		case entry.Error != "":
			out = append(out, FailedAsset{URL: entry.URL, Name: entry.Name, Reason: entry.Error})
		case entry.UploadError != "":
			out = append(out, FailedAsset{URL: entry.URL, Name: entry.Name, Reason: "upload: " + entry.UploadError})
		}
	}
	return out
}

// ClonedSite is the pipeline output handed to the publisher.
type ClonedSite struct {
	Document  []byte
	Resources map[string]*Resource
	Manifest  Manifest
}

// PutStatus reports how a store handled an upload.
type PutStatus string

// Upload outcomes.
const (
	PutCreated   PutStatus = "created"
	PutUpdated   PutStatus = "updated"
	PutUnchanged PutStatus = "unchanged"
)

// Object is a stored file read back from a content store.
type Object struct {
	Path        string
	ContentType string
	Data        []byte
}

// ObjectInfo is a listing entry; directories are reported with IsDir.
type ObjectInfo struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// PublishResult is returned by the publisher.
type PublishResult struct {
	Name        string   `json:"name"`
	PublicURL   string   `json:"public_url"`
	ManifestURL string   `json:"manifest_url"`
	Uploaded    int      `json:"uploaded"`
	Unchanged   int      `json:"unchanged"`
	Failed      int      `json:"failed"`
	Pruned      int      `json:"pruned"`
	Manifest    Manifest `json:"manifest"`
}

// PublishedSite is a listing entry for a published artifact.
type PublishedSite struct {
	Name      string `json:"name"`
	PublicURL string `json:"public_url"`
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Request   CloneRequest
	Submitted int64
}
