package audit

import "time"

// Action describes what was done to a visualisation.
type Action string

const (
	ActionCreated        Action = "created"
	ActionDatasetUpdated Action = "dataset_updated"
	ActionDownloaded     Action = "downloaded"
	ActionShared         Action = "shared"
	ActionUnshared       Action = "unshared"
	ActionDeleted        Action = "deleted"
)

// Entry is a single audit trail record.
type Entry struct {
	ID              string    `json:"id"`
	Timestamp       time.Time `json:"timestamp"`
	ActorID         string    `json:"actor_id,omitempty"`
	Action          Action    `json:"action"`
	VisualisationID string    `json:"visualisation_id"`
	Summary         string    `json:"summary,omitempty"`
	Detail          string    `json:"detail,omitempty"`
}
