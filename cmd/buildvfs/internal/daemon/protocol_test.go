package daemon

import (
	"encoding/json"
	"testing"
)

func TestNewRequestMarshalsParams(t *testing.T) {
	req, err := NewRequest(7, MethodStoreInvalidate, StoreInvalidateParams{Paths: []string{"/a"}})
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if req.JSONRPC != JSONRPCVersion {
		t.Errorf("JSONRPC = %q, want %q", req.JSONRPC, JSONRPCVersion)
	}
	if req.ID == nil || *req.ID != 7 {
		t.Errorf("ID = %v, want 7", req.ID)
	}

	var params StoreInvalidateParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		t.Fatalf("failed to unmarshal params: %v", err)
	}
	if len(params.Paths) != 1 || params.Paths[0] != "/a" {
		t.Errorf("params.Paths = %v, want [/a]", params.Paths)
	}
}

func TestNewRequestNilParams(t *testing.T) {
	req, err := NewRequest(1, MethodPing, nil)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if req.Params != nil {
		t.Errorf("Params = %s, want nil", req.Params)
	}
}

func TestNewResponseNullResult(t *testing.T) {
	resp, err := NewResponse(3, nil)
	if err != nil {
		t.Fatalf("NewResponse() error = %v", err)
	}
	if string(resp.Result) != "null" {
		t.Errorf("Result = %s, want null", resp.Result)
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(nil, ErrCodeMethodNotFound, "Method not found: bogus", nil)
	if resp.Error == nil {
		t.Fatal("Error is nil")
	}
	if resp.Error.Code != ErrCodeMethodNotFound {
		t.Errorf("Code = %d, want %d", resp.Error.Code, ErrCodeMethodNotFound)
	}
	if resp.ID != nil {
		t.Errorf("ID = %v, want nil", resp.ID)
	}

	var e error = resp.Error
	want := "RPC error -32601: Method not found: bogus"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}

func TestNotificationHasNoID(t *testing.T) {
	notif, err := NewNotification(MethodWatchEvent, WatchEventParams{Type: "invalidate"})
	if err != nil {
		t.Fatalf("NewNotification() error = %v", err)
	}

	data, err := json.Marshal(notif)
	if err != nil {
		t.Fatalf("failed to marshal notification: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if _, ok := raw["id"]; ok {
		t.Error("notification should not carry an id field")
	}
}

func TestIDGeneratorMonotonic(t *testing.T) {
	var gen IDGenerator
	a, b, c := gen.Next(), gen.Next(), gen.Next()
	if a != 1 || b != 2 || c != 3 {
		t.Errorf("Next() sequence = %d, %d, %d; want 1, 2, 3", a, b, c)
	}
}
