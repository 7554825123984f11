package api

import (
	"github.com/uhyunpark/dexscenario/pkg/book"
	"github.com/uhyunpark/dexscenario/pkg/runner"
)

// API response types for REST endpoints and WebSocket messages

// ==============================
// REST Response Types
// ==============================

// RunList is the response of GET /api/v1/runs.
type RunList struct {
	Runs  []runner.Run `json:"runs"`
	Count int          `json:"count"`
}

// RunDetail is a run with a summary of its events.
type RunDetail struct {
	runner.Run
	Events    int    `json:"events"`
	LastStage string `json:"lastStage,omitempty"`
	Failed    int    `json:"failedSteps"`
}

// SnapshotInfo describes a snapshot without its rows.
type SnapshotInfo struct {
	Label string `json:"label"`
	Code  string `json:"code"`
	Table string `json:"table"`
	Scope string `json:"scope"`
	Rows  int    `json:"rows"`
}

// BookResponse is the order book rebuilt from a run's order table
// snapshots.
type BookResponse struct {
	RunID  string            `json:"runId"`
	Pair   uint64            `json:"pair"`
	Label  string            `json:"label"`
	Bids   []book.PriceLevel `json:"bids"` // Sorted high to low
	Asks   []book.PriceLevel `json:"asks"` // Sorted low to high
	Spread string            `json:"spread,omitempty"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["runs", "run:<id>"]
}

// WSAck confirms a subscription change.
type WSAck struct {
	Type     string   `json:"type"` // "subscribed" or "unsubscribed"
	Channels []string `json:"channels"`
}

// WSEvent carries one run event.
type WSEvent struct {
	Type    string       `json:"type"` // "event"
	Channel string       `json:"channel"`
	Event   runner.Event `json:"event"`
}
