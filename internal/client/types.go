// Package client provides the WebSocket transport session and the HTTP
// client the scanner uses to talk to the listener. Types mirror the listener
// wire protocol without importing listener packages.
package client

import (
	"encoding/json"
	"time"
)

// Event names carried in Frame.Type.
const (
	EventBarcode = "barcode"
	EventAck     = "ack"
	EventAuth    = "auth"
	EventError   = "error"
	EventScan    = "scan"
)

// Frame is the envelope for every WebSocket text message. A barcode frame
// carries the raw decoded value as a JSON string payload and nothing else;
// Ack is only set when the sender asked for a remote acknowledgment.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ack     uint64          `json:"ack,omitempty"`
	Token   string          `json:"token,omitempty"`
}

// Status is the connection state of a Session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// ErrorPayload is sent by the listener when it rejects a frame.
type ErrorPayload struct {
	Message string `json:"message"`
	Ack     uint64 `json:"ack,omitempty"`
}

// --- HTTP response types ---

// ScanRecord mirrors a scan recorded by the listener.
type ScanRecord struct {
	ID         string    `json:"id"`
	Value      string    `json:"value"`
	Remote     string    `json:"remote"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Health is returned by /api/health.
type Health struct {
	Status          string  `json:"status"`
	UptimeSec       float64 `json:"uptimeSec"`
	Scanners        int     `json:"scanners"`
	Viewers         int     `json:"viewers"`
	ScansRecorded   int     `json:"scansRecorded"`
	ProcessRSSBytes uint64  `json:"processRssBytes"`
	HostUptimeSec   uint64  `json:"hostUptimeSec"`
}
