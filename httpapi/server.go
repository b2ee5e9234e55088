// Package httpapi serves a debug surface over the tab coordination core: tab
// bookkeeping, derived frames, screenshots, an SSE event stream and metrics.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/tabdeck/core"
	"pkt.systems/tabdeck/internal/logx"
	"pkt.systems/tabdeck/internal/metrics"
	"pkt.systems/tabdeck/internal/shotstore"
	"pkt.systems/tabdeck/schema"
)

// Server serves the HTTP API.
type Server struct {
	cfg      Config
	service  core.TabAPI
	frames   FrameSource
	hub      *Hub
	metrics  *metrics.Metrics
	basePath string
}

// FrameSource exposes the derived per-tab frames.
type FrameSource interface {
	Frames() []core.TabFrame
	Progress() float64
	TabViewState() core.TabViewState
}

// NewServer constructs an HTTP server. frames and m may be nil.
func NewServer(cfg Config, service core.TabAPI, frames FrameSource, hub *Hub, m *metrics.Metrics) *Server {
	if hub == nil {
		hub = NewHub(cfg.HubHistory)
	}
	return &Server{
		cfg:      cfg,
		service:  service,
		frames:   frames,
		hub:      hub,
		metrics:  m,
		basePath: normalizeBasePath(cfg.BasePath),
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/tabs", s.handleListTabs)
	mux.HandleFunc("POST /api/tabs", s.handleNewTab)
	mux.HandleFunc("DELETE /api/tabs/{id}", s.handleCloseTab)
	mux.HandleFunc("POST /api/tabs/{id}/activate", s.handleActivate)
	mux.HandleFunc("POST /api/tabview/show", s.handleTabView(true))
	mux.HandleFunc("POST /api/tabview/hide", s.handleTabView(false))
	mux.HandleFunc("GET /api/frames", s.handleFrames)
	mux.HandleFunc("GET /api/screenshots/{id}", s.handleScreenshot)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return mount(s.basePath, withRequestLogging(mux))
}

func (s *Server) handleListTabs(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.ListTabs(r.Context(), schema.ListTabsRequest{})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp.List)
}

func (s *Server) handleNewTab(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	var payload struct {
		URL      string `json:"url"`
		Activate *bool  `json:"activate"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &payload); err != nil && !errors.Is(err, io.EOF) {
			log.Warn("http new tab decode failed", "err", err)
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	activate := true
	if payload.Activate != nil {
		activate = *payload.Activate
	}
	resp, err := s.service.NewTab(r.Context(), schema.NewTabRequest{URL: payload.URL, Activate: activate})
	if err != nil {
		log.Warn("http new tab failed", "err", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, resp.Tab)
}

func (s *Server) handleCloseTab(w http.ResponseWriter, r *http.Request) {
	id := schema.TabID(r.PathValue("id"))
	resp, err := s.service.CloseTab(r.Context(), schema.CloseTabRequest{TabID: id})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Tab)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	id := schema.TabID(r.PathValue("id"))
	resp, err := s.service.ActivateTab(r.Context(), schema.ActivateTabRequest{TabID: id})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Tab)
}

func (s *Server) handleTabView(show bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			resp schema.TabViewResponse
			err  error
		)
		if show {
			resp, err = s.service.ShowTabView(r.Context(), schema.TabViewRequest{})
		} else {
			resp, err = s.service.HideTabView(r.Context(), schema.TabViewRequest{})
		}
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type framePayload struct {
	ID           schema.TabID `json:"id"`
	Index        int          `json:"index"`
	Opacity      float64      `json:"opacity"`
	TranslateX   float64      `json:"translate_x"`
	TranslateY   float64      `json:"translate_y"`
	Scale        float64      `json:"scale"`
	BorderRadius float64      `json:"border_radius"`
	ZIndex       int          `json:"z_index"`
	Screenshot   string       `json:"screenshot,omitempty"`
}

func (s *Server) handleFrames(w http.ResponseWriter, _ *http.Request) {
	if s.frames == nil {
		writeError(w, http.StatusNotImplemented, errors.New("frames unavailable"))
		return
	}
	frames := s.frames.Frames()
	out := make([]framePayload, 0, len(frames))
	for _, f := range frames {
		out = append(out, framePayload{
			ID:           f.ID,
			Index:        f.Index,
			Opacity:      f.Frame.Opacity,
			TranslateX:   f.Frame.TranslateX,
			TranslateY:   f.Frame.TranslateY,
			Scale:        f.Frame.Scale,
			BorderRadius: f.Frame.BorderRadius,
			ZIndex:       f.Frame.ZIndex,
			Screenshot:   f.Screenshot,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"progress": s.frames.Progress(),
		"state":    s.frames.TabViewState().String(),
		"frames":   out,
	})
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	id := schema.TabID(r.PathValue("id"))
	rec, err := s.service.Screenshot(r.Context(), id)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	path, ok := shotstore.Path(rec.URI)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", schema.ErrScreenshotNotFound, id))
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Screenshot-URL", rec.URL)
	http.ServeFile(w, r, path)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))

	// Subscribe before the snapshot so no event falls between them.
	ch, unsubscribe, _ := s.hub.Subscribe()
	defer unsubscribe()

	snapshotTabs := 0
	if resp, err := s.service.ListTabs(r.Context(), schema.ListTabsRequest{}); err == nil {
		snapshotTabs = len(resp.List.Tabs)
		_ = writeSSEvent(w, StreamEvent{
			Type:        "snapshot",
			Snapshot:    &resp.List,
			ActiveIndex: resp.List.ActiveIndex,
			Timestamp:   time.Now(),
		})
		flusher.Flush()
	}

	replayCount := 0
	if lastID > 0 {
		replay := s.hub.Replay(lastID)
		replayCount = len(replay)
		for _, event := range replay {
			_ = writeSSEvent(w, event)
			lastID = event.Seq
		}
		flusher.Flush()
	}

	notify := r.Context().Done()
	log.Info("http stream opened", "last_id", lastID, "replay", replayCount, "tabs", snapshotTabs)
	for {
		select {
		case <-notify:
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Seq <= lastID {
				continue
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, schema.ErrTabNotFound), errors.Is(err, schema.ErrScreenshotNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrInvalidTransition), errors.Is(err, schema.ErrDuplicateTab), errors.Is(err, schema.ErrNoTabs):
		return http.StatusConflict
	case errors.Is(err, schema.ErrMailboxFull), errors.Is(err, schema.ErrMailboxClosed), errors.Is(err, schema.ErrEngineUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
