package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/albertocavalcante/buildvfs/cmd/buildvfs/internal/watch"
	"github.com/albertocavalcante/buildvfs/internal/log"
	"github.com/albertocavalcante/buildvfs/pkg/fingerprint"
	"github.com/albertocavalcante/buildvfs/pkg/vfs"
)

// Handler handles RPC method calls against the daemon's warm store.
type Handler struct {
	server *Server

	store        *vfs.Store
	newHost      func() *fingerprint.StoreHost
	manifestPath string
	root         string
	ignore       []string
	debounce     int

	// Watch state
	watchMu     sync.Mutex
	watchCancel context.CancelFunc
}

// HandlerConfig configures the RPC handler.
type HandlerConfig struct {
	// Store is the shared snapshot store kept warm across requests.
	Store *vfs.Store

	// NewHost builds a fresh fingerprint host over Store. A new host is
	// built per check so fingerprint memoization never spans checks.
	NewHost func() *fingerprint.StoreHost

	// ManifestPath locates the recorded manifest for check/run.
	ManifestPath string

	// Root is the workspace root; relative request paths resolve against it.
	Root string

	// Ignore lists entry names excluded from snapshot listings and watching.
	Ignore []string

	// Debounce is the watcher's coalescing window in milliseconds.
	Debounce int
}

// NewHandler creates a new RPC handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		store:        cfg.Store,
		newHost:      cfg.NewHost,
		manifestPath: cfg.ManifestPath,
		root:         cfg.Root,
		ignore:       cfg.Ignore,
		debounce:     cfg.Debounce,
	}
}

// HandleRequest dispatches a request to the appropriate handler.
func (h *Handler) HandleRequest(client *ClientConn, req *Request) *Response {
	logger := log.Component("daemon")
	logger.Debug("handling request", "method", req.Method, "id", req.ID)

	switch req.Method {
	case MethodPing:
		return h.handlePing(req)
	case MethodShutdown:
		return h.handleShutdown(req)
	case MethodCheck:
		return h.handleCheck(req)
	case MethodSnapshotRead:
		return h.handleSnapshotRead(req)
	case MethodStoreInvalidate:
		return h.handleStoreInvalidate(req)
	case MethodWatchSubscribe:
		return h.handleWatchSubscribe(client, req)
	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
}

// handlePing handles the ping request.
func (h *Handler) handlePing(req *Request) *Response {
	result := PingResult{
		Pong:      true,
		Version:   h.server.version,
		Uptime:    h.server.Uptime().String(),
		StartTime: h.server.startTime.Format(time.RFC3339),
	}

	resp, err := NewResponse(*req.ID, result)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to create response", nil)
	}
	return resp
}

// handleShutdown handles the shutdown request.
func (h *Handler) handleShutdown(req *Request) *Response {
	// Send response first, then shutdown
	result := ShutdownResult{
		Message: "daemon shutting down",
	}

	resp, err := NewResponse(*req.ID, result)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to create response", nil)
	}

	// Schedule shutdown after response is sent
	go func() {
		time.Sleep(100 * time.Millisecond) // Give time to send response
		h.server.RequestShutdown()
	}()

	return resp
}

// handleCheck runs a fingerprint check against the recorded manifest using
// the warm store. The store survives between checks; the host does not.
func (h *Handler) handleCheck(req *Request) *Response {
	src, closer, err := fingerprint.OpenManifest(h.manifestPath)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to open manifest", err.Error())
	}
	defer func() { _ = closer.Close() }()

	start := time.Now()
	reason, err := fingerprint.Check(context.Background(), src, h.newHost())
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Check failed", err.Error())
	}

	result := CheckResult{
		UpToDate: reason == "",
		Reason:   reason,
		Duration: time.Since(start).String(),
	}

	resp, err := NewResponse(*req.ID, result)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to create response", nil)
	}
	return resp
}

// handleSnapshotRead handles the snapshot/read request.
func (h *Handler) handleSnapshotRead(req *Request) *Response {
	var params SnapshotReadParams
	if req.Params != nil {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, "Invalid params", err.Error())
		}
	}

	target := params.Path
	if target == "" {
		target = h.root
	} else if !filepath.IsAbs(target) {
		target = filepath.Join(h.root, target)
	}

	filter := vfs.ExcludeNames(h.ignore...)
	if len(params.Extensions) > 0 {
		filter = vfs.AllOf(filter, vfs.ExtensionFilter(params.Extensions...))
	}

	snap, err := h.store.ReadFiltered(context.Background(), target, filter)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to read snapshot", err.Error())
	}
	if snap == nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "Location is excluded by the configured filters", nil)
	}

	result := SnapshotReadResult{Root: target}
	vfs.Walk(snap, func(s vfs.Snapshot, relPath string) vfs.VisitResult {
		entry := SnapshotEntry{Path: relPath}
		switch s := s.(type) {
		case *vfs.FileSnapshot:
			entry.Kind = "file"
			entry.Hash = s.Hash()
		case *vfs.DirectorySnapshot:
			entry.Kind = "dir"
		case *vfs.MissingSnapshot:
			entry.Kind = "missing"
		}
		result.Entries = append(result.Entries, entry)
		return vfs.VisitContinue
	})

	resp, err := NewResponse(*req.ID, result)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to create response", nil)
	}
	return resp
}

// handleStoreInvalidate handles the store/invalidate request.
func (h *Handler) handleStoreInvalidate(req *Request) *Response {
	var params StoreInvalidateParams
	if req.Params != nil {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, "Invalid params", err.Error())
		}
	}
	if len(params.Paths) == 0 {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "No paths given", nil)
	}

	paths := make([]string, len(params.Paths))
	for i, p := range params.Paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(h.root, p)
		}
		paths[i] = p
	}
	h.store.Invalidate(paths...)

	resp, err := NewResponse(*req.ID, StoreInvalidateResult{Status: "invalidated"})
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to create response", nil)
	}
	return resp
}

// handleWatchSubscribe handles the watch/subscribe request.
func (h *Handler) handleWatchSubscribe(client *ClientConn, req *Request) *Response {
	client.Subscribe()

	resp, err := NewResponse(*req.ID, WatchSubscribeResult{Status: "subscribed"})
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "Failed to create response", nil)
	}
	return resp
}

// StartWatch starts the workspace watcher keeping the warm store honest.
// Invalidations are broadcast to subscribed clients.
func (h *Handler) StartWatch() error {
	watcher, err := watch.New(h.store, watch.Config{
		Root:     h.root,
		Ignore:   h.ignore,
		Debounce: h.debounce,
		OnInvalidate: func(paths []string) {
			h.BroadcastEvent("invalidate", paths, "")
		},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h.watchMu.Lock()
	h.watchCancel = cancel
	h.watchMu.Unlock()

	go func() {
		logger := log.Component("daemon")
		if err := watcher.Run(ctx); err != nil {
			logger.Warn("watcher stopped with error", "error", err)
		}
	}()
	return nil
}

// Stop stops the handler's watcher.
func (h *Handler) Stop() {
	h.watchMu.Lock()
	defer h.watchMu.Unlock()

	if h.watchCancel != nil {
		h.watchCancel()
		h.watchCancel = nil
	}
}

// BroadcastEvent broadcasts a watch event to all subscribed clients.
func (h *Handler) BroadcastEvent(eventType string, paths []string, message string) {
	if h.server == nil {
		return
	}

	notif, err := NewNotification(MethodWatchEvent, WatchEventParams{
		Type:      eventType,
		Paths:     paths,
		Message:   message,
		Timestamp: time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	h.server.Broadcast(notif)
}
