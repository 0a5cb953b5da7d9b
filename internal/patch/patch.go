package patch

import "encoding/json"

// Patch is the minimal synchronization diff published after every applied
// command. It fans out on a side channel so clients see status changes
// faster than the primary document subscription can deliver them.
type Patch struct {
	ID            string          `json:"patch_id"`
	RoomID        string          `json:"room_id"`
	StatusVersion int64           `json:"status_version"`
	Room          json.RawMessage `json:"room,omitempty"`
	Command       string          `json:"command"`
	RequestID     string          `json:"request_id"`
	Source        string          `json:"source"`
	TS            int64           `json:"ts"`
}
