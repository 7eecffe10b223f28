package events

import "time"

// LayerUpdated is emitted when a layer file has been rewritten. Layer is
// the layer name when known; Path is the file that changed.
type LayerUpdated struct {
	Layer  string    `json:"layer"`
	Path   string    `json:"path"`
	RunID  string    `json:"run_id,omitempty"`
	Step   string    `json:"step,omitempty"`
	Time   time.Time `json:"time"`
	Remote bool      `json:"-"`
}

// LayerLoaded is emitted by the catalog after reading a layer.
type LayerLoaded struct {
	Layer    string
	Features int
	Err      error
}
