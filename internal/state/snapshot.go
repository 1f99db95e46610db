package state

import "time"

// Window states as reported to consumers.
const (
	StateOn      = "on"
	StateOff     = "off"
	StateUnknown = "unknown"
)

// WindowStatus is the last evaluated state of one window.
type WindowStatus struct {
	ID         string         `json:"id"`
	Name       string         `json:"name,omitempty"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
	NextUpdate time.Time      `json:"next_update,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// Snapshot is the persisted set of statuses written after each check.
type Snapshot struct {
	ID          string         `json:"id"`
	TakenAt     time.Time      `json:"taken_at"`
	ToolVersion string         `json:"tool_version"`
	Statuses    []WindowStatus `json:"statuses"`
}

// ByID indexes the snapshot's statuses.
func (s Snapshot) ByID() map[string]WindowStatus {
	out := make(map[string]WindowStatus, len(s.Statuses))
	for _, st := range s.Statuses {
		out[st.ID] = st
	}
	return out
}
