package worker

import (
	"time"

	"github.com/JakeFAU/site-cloner/internal/cloner"
)

// Event is the notification published when a job reaches a terminal status.
type Event struct {
	JobID        string           `json:"job_id"`
	Name         string           `json:"name"`
	SourceURL    string           `json:"source_url"`
	Status       cloner.JobStatus `json:"status"`
	ErrorKind    cloner.ErrorKind `json:"error_kind,omitempty"`
	Error        string           `json:"error,omitempty"`
	PublicURL    string           `json:"public_url,omitempty"`
	ManifestURL  string           `json:"manifest_url,omitempty"`
	Assets       int              `json:"assets"`
	FailedAssets int              `json:"failed_assets"`
	FinishedAt   time.Time        `json:"finished_at"`
}

// Attributes are copied onto the Pub/Sub message for subscription filters.
func (e Event) Attributes() map[string]string {
	attrs := map[string]string{"job_id": e.JobID, "status": string(e.Status)}
	if e.ErrorKind != "" {
		attrs["error_kind"] = string(e.ErrorKind)
	}
	return attrs
}
