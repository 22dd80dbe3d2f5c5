package mqtt

import (
	"encoding/json"
	"time"
)

// Presence values on the system status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	// ReasonCrashed is carried by the will the broker publishes when
	// nodeward vanishes without disconnecting.
	ReasonCrashed = "unexpected_disconnect"

	// ReasonShutdown is carried by the offline message sent on Close.
	ReasonShutdown = "graceful_shutdown"
)

// Presence is the retained message on nodeward/system/status.
type Presence struct {
	Status    string    `json:"status"`
	ClientID  string    `json:"client_id"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func presence(clientID, status, reason string) []byte {
	b, _ := json.Marshal(Presence{ //nolint:errcheck // plain struct always marshals
		Status:    status,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})
	return b
}
