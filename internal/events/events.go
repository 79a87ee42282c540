package events

import (
	"encoding/json"
	"time"
)

const (
	TypePing            = "ping"
	TypeStatsSnapshot   = "stats_snapshot"
	TypeStatsUpdated    = "stats_updated"
	TypeStatsFailed     = "stats_failed"
	TypeScrapeFinished  = "scrape_finished"
	TypeSettingsUpdated = "settings_updated"
)

// Event is the envelope every SSE message is wrapped in.
type Event struct {
	Type      string          `json:"type"`
	Version   int             `json:"v"`
	At        time.Time       `json:"at"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func MakeEvent(reqID, typ string, v int, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	e := Event{
		Type:      typ,
		Version:   v,
		At:        time.Now().UTC(),
		RequestID: reqID,
		Data:      raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}
