// Package daemon implements the buildvfs daemon server and client.
//
// The daemon keeps a warm snapshot store for a workspace and answers
// fingerprint checks over a Unix socket, so repeated checks skip the
// cost of rescanning unchanged directory trees. A filesystem watcher
// keeps the cache honest between requests.
package daemon

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

// JSON-RPC 2.0 version string.
const JSONRPCVersion = "2.0"

// JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"` // nil for notifications
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Notification represents a JSON-RPC 2.0 notification (no ID, no response expected).
type Notification struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// NewRequest creates a new JSON-RPC request.
func NewRequest(id int64, method string, params any) (*Request, error) {
	req := &Request{
		JSONRPC: JSONRPCVersion,
		ID:      &id,
		Method:  method,
	}

	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		req.Params = data
	}

	return req, nil
}

// NewNotification creates a new JSON-RPC notification.
func NewNotification(method string, params any) (*Notification, error) {
	notif := &Notification{
		JSONRPC: JSONRPCVersion,
		Method:  method,
	}

	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		notif.Params = data
	}

	return notif, nil
}

// NewResponse creates a successful JSON-RPC response.
func NewResponse(id int64, result any) (*Response, error) {
	resp := &Response{
		JSONRPC: JSONRPCVersion,
		ID:      &id,
	}

	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal result: %w", err)
		}
		resp.Result = data
	} else {
		// JSON-RPC requires result to be present on success (can be null)
		resp.Result = json.RawMessage("null")
	}

	return resp, nil
}

// NewErrorResponse creates an error JSON-RPC response.
func NewErrorResponse(id *int64, code int, message string, data any) *Response {
	resp := &Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
		},
	}

	if data != nil {
		if d, err := json.Marshal(data); err == nil {
			resp.Error.Data = d
		}
	}

	return resp
}

// Standard RPC methods.
const (
	MethodPing            = "ping"
	MethodShutdown        = "shutdown"
	MethodCheck           = "check/run"
	MethodSnapshotRead    = "snapshot/read"
	MethodStoreInvalidate = "store/invalidate"
	MethodWatchSubscribe  = "watch/subscribe"
	MethodWatchEvent      = "watch/event" // notification from server to client
)

// PingResult is the response to a ping request.
type PingResult struct {
	Pong      bool   `json:"pong"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	StartTime string `json:"start_time"`
}

// ShutdownResult is the response to a shutdown request.
type ShutdownResult struct {
	Message string `json:"message"`
}

// CheckResult is the response to check/run.
type CheckResult struct {
	UpToDate bool   `json:"up_to_date"`
	Reason   string `json:"reason,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// SnapshotReadParams are the parameters for snapshot/read.
type SnapshotReadParams struct {
	Path       string   `json:"path"`
	Extensions []string `json:"extensions,omitempty"`
}

// SnapshotEntry is one location in a snapshot/read listing.
type SnapshotEntry struct {
	Path string `json:"path"`
	Kind string `json:"kind"` // "file", "dir", or "missing"
	Hash string `json:"hash,omitempty"`
}

// SnapshotReadResult is the response to snapshot/read.
type SnapshotReadResult struct {
	Root    string          `json:"root"`
	Entries []SnapshotEntry `json:"entries"`
}

// StoreInvalidateParams are the parameters for store/invalidate.
type StoreInvalidateParams struct {
	Paths []string `json:"paths"`
}

// StoreInvalidateResult is the response to store/invalidate.
type StoreInvalidateResult struct {
	Status string `json:"status"`
}

// WatchSubscribeResult is the response to watch/subscribe.
type WatchSubscribeResult struct {
	Status string `json:"status"`
}

// WatchEventParams are the parameters for watch/event notifications.
type WatchEventParams struct {
	Type      string   `json:"type"` // "invalidate" or "shutdown"
	Paths     []string `json:"paths,omitempty"`
	Message   string   `json:"message,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// IDGenerator generates unique request IDs.
type IDGenerator struct {
	counter atomic.Int64
}

// Next returns the next unique ID.
func (g *IDGenerator) Next() int64 {
	return g.counter.Add(1)
}

// DaemonInfo contains information about the running daemon.
type DaemonInfo struct {
	PID         int       `json:"pid"`
	SocketPath  string    `json:"socket_path"`
	StartTime   time.Time `json:"start_time"`
	Version     string    `json:"version"`
	ClientCount int       `json:"client_count"`
}
