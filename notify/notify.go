// Package notify implements the notifier sinks the engine reports
// through: a stdout JSON-lines sink and a webhook sink with retry. Both
// satisfy hunter.Notifier. Delivery is fire-and-forget from the engine's
// perspective; a failed delivery is logged and never retried across
// cycles, so a broken channel cannot cause notification storms.
package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/veillant/huntd/hunter"
)

// event is the wire envelope both sinks emit.
type event struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"` // change | error
	Issuer string `json:"issuer"`
	Type   string `json:"missionType,omitempty"`
	URL    string `json:"url,omitempty"`
	Error  string `json:"error,omitempty"`
	At     string `json:"at"`
}

func newEvent(kind, issuer string, mission *hunter.Mission, evalErr error) event {
	e := event{
		ID:     uuid.Must(uuid.NewV7()).String(),
		Kind:   kind,
		Issuer: issuer,
		At:     time.Now().UTC().Format(time.RFC3339),
	}
	if mission != nil {
		e.Type = string(mission.Type)
		e.URL = mission.URL
	}
	if evalErr != nil {
		e.Error = evalErr.Error()
	}
	return e
}
