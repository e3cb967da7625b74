package model

import (
	"encoding/json"
	"time"
)

// SessionStatus tracks the lifecycle of an intelligence session.
type SessionStatus string

const (
	SessionPending    SessionStatus = "pending"
	SessionDiscovery  SessionStatus = "discovery"
	SessionScraping   SessionStatus = "scraping"
	SessionExtracting SessionStatus = "extracting"
	SessionCompleted  SessionStatus = "completed"
	SessionFailed     SessionStatus = "failed"
)

// Session is the persisted state of one intelligence run. Version is the
// optimistic-lock token: writers must supply the version they last read.
type Session struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Domain    string          `json:"domain"`
	Status    SessionStatus   `json:"status"`
	Phase     int             `json:"phase"`
	Version   int64           `json:"version"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DataMap decodes the session's merged-data blob. A nil or empty blob
// decodes to an empty map.
func (s *Session) DataMap() (map[string]json.RawMessage, error) {
	m := make(map[string]json.RawMessage)
	if len(s.Data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(s.Data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
