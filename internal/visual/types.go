package visual

import (
	"encoding/json"
	"time"
)

// Visualisation is a stored dashboard: an HTML template plus the dataset it
// is rendered with.
type Visualisation struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Template    string          `json:"template,omitempty"`
	Dataset     json.RawMessage `json:"dataset,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// createRequest is the body of POST /api/v1/visualisations.
type createRequest struct {
	UserID      string          `json:"user_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Template    string          `json:"template"`
	Dataset     json.RawMessage `json:"dataset"`
}

// statusResponse reports a headless load of a visualisation.
type statusResponse struct {
	ID            string          `json:"id"`
	Cycle         uint64          `json:"cycle"`
	DocumentTitle string          `json:"document_title,omitempty"`
	Loading       bool            `json:"loading"`
	Fullscreen    bool            `json:"fullscreen"`
	ScrollLocked  bool            `json:"scroll_locked"`
	Surfaces      []surfaceStatus `json:"surfaces"`
}

type surfaceStatus struct {
	Surface string `json:"surface"`
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
}

type fullscreenResponse struct {
	Shown        bool  `json:"shown"`
	ScrollLocked bool  `json:"scroll_locked"`
	Consumed     *bool `json:"consumed,omitempty"`
}

type keyRequest struct {
	Key string `json:"key"`
}

// shareRequest is the body of POST /api/v1/visualisations/{id}/shares.
type shareRequest struct {
	OwnerID  string `json:"owner_id"`
	TargetID string `json:"target_id"`
}
