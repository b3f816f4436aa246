package listener

import (
	"encoding/json"
	"time"
)

const (
	EventBarcode  = "barcode"
	EventAck      = "ack"
	EventAuth     = "auth"
	EventError    = "error"
	EventScan     = "scan"
	EventSnapshot = "snapshot"
)

// Frame is the envelope of every WebSocket text message, in both
// directions.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ack     uint64          `json:"ack,omitempty"`
	Token   string          `json:"token,omitempty"`
}

// outFrame is Frame with a payload that still needs encoding.
type outFrame struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
	Ack     uint64      `json:"ack,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Ack     uint64 `json:"ack,omitempty"`
}

// Scan is one barcode event as recorded by the listener.
type Scan struct {
	ID         string    `json:"id"`
	Value      string    `json:"value"`
	Remote     string    `json:"remote"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Health is served on /api/health.
type Health struct {
	Status          string  `json:"status"`
	UptimeSec       float64 `json:"uptimeSec"`
	Scanners        int     `json:"scanners"`
	Viewers         int     `json:"viewers"`
	ScansRecorded   int     `json:"scansRecorded"`
	ProcessRSSBytes uint64  `json:"processRssBytes"`
	HostUptimeSec   uint64  `json:"hostUptimeSec"`
}
