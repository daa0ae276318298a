package ws

import (
	"encoding/json"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> Server messages

type ReportRequestPayload struct {
	Granularity string `json:"granularity"`
}

// Server -> Client messages

type TimeRangeInfo struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type StatsInfo struct {
	Warnings     int `json:"warnings"`
	Conflicts    int `json:"conflicts"`
	ProdSources  int `json:"prod_sources"`
	ProdRecords  int `json:"prod_records"`
	ProdDupsOK   int `json:"prod_dups_ok"`
	UsageSources int `json:"usage_sources"`
	UsageRecords int `json:"usage_records"`
	UsageDupsOK  int `json:"usage_dups_ok"`
}

type DataLoadedPayload struct {
	Stats     StatsInfo      `json:"stats"`
	Hours     int            `json:"hours"`
	TimeRange *TimeRangeInfo `json:"time_range,omitempty"`
}

type ReportRowPayload struct {
	Granularity   string `json:"granularity"`
	IntervalStart string `json:"interval_start"`
	ProducedWh    int64  `json:"produced_wh"`
	NetUsedWh     int64  `json:"net_used_wh"`
	ConsumedWh    int64  `json:"consumed_wh"`
	ConsumedKWh   string `json:"consumed_kwh"`
}

type ReportDonePayload struct {
	Granularity string `json:"granularity"`
	Rows        int    `json:"rows"`
}

type SourceLoadedPayload struct {
	Category string `json:"category"`
	Source   string `json:"source"`
	Records  int    `json:"records"`
	Merged   int    `json:"merged"`
	DupsOK   int    `json:"dups_ok"`
	Warnings int    `json:"warnings"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// Message type constants
const (
	// Client -> Server
	TypeReportRequest = "report:request"
	TypeDataReload    = "data:reload"

	// Server -> Client
	TypeDataLoaded   = "data:loaded"
	TypeReportRow    = "report:row"
	TypeReportDone   = "report:done"
	TypeSourceLoaded = "source:loaded"
	TypeError        = "error"
)

// NewEnvelope creates a JSON-encoded envelope message.
func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
