package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"iphone-alarms-sync/internal/domain"
	"iphone-alarms-sync/internal/logging"
	"iphone-alarms-sync/internal/usecase"
)

// Options tune the server beyond its listen address.
type Options struct {
	Addr string
	// PublicURL is the base embedded in the shortcut QR code. Empty means
	// derive it from the request.
	PublicURL string
	// Tracker, when set, exposes timer states on /api/next.
	Tracker *usecase.OccurrenceTracker
}

// Server is a primary adapter that exposes the HTTP API and websocket push.
// It depends on the coordinator (primary port).
type Server struct {
	coord       usecase.Coordinator
	hub         *Hub
	opts        Options
	server      *http.Server
	handler     http.Handler
	unsubscribe func()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NewServer creates the HTTP server bound to opts.Addr. hub should be the same
// one the coordinator publishes events to.
func NewServer(coord usecase.Coordinator, hub *Hub, opts Options) *Server {
	if hub == nil {
		hub = NewHub()
	}
	srv := &Server{coord: coord, hub: hub, opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/phone", srv.handlePhone)
	mux.HandleFunc("POST /api/sync", srv.handleSync)
	mux.HandleFunc("GET /api/alarms", srv.handleListAlarms)
	mux.HandleFunc("GET /api/alarms/{id}", srv.handleGetAlarm)
	mux.HandleFunc("PATCH /api/alarms/{id}", srv.handlePatchAlarm)
	mux.HandleFunc("DELETE /api/alarms/{id}", srv.handleDeleteAlarm)
	mux.HandleFunc("POST /api/alarms/{id}/events", srv.handleAlarmEvent)
	mux.HandleFunc("POST /api/device-events", srv.handleDeviceEvent)
	mux.HandleFunc("GET /api/events", srv.handleEvents)
	mux.HandleFunc("GET /api/next", srv.handleNext)
	mux.HandleFunc("GET /api/shortcut/qr", srv.handleQR)
	mux.HandleFunc("GET /ws", srv.handleWS)

	srv.handler = loggingMiddleware(mux)
	srv.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           srv.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.unsubscribe = coord.Subscribe(func() {
		hub.Broadcast(MsgStateChanged, srv.phoneView())
	})
	return srv
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start blocks and serves HTTP traffic.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and disconnects websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.unsubscribe()
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

func (s *Server) phoneView() PhoneView {
	return NewPhoneView(s.coord.Phone(), s.coord.Now(), s.coord.Location())
}

type setupRequest struct {
	Name               string `json:"phone_name"`
	CompanionDeviceID  string `json:"mobile_app_device_id"`
	KeepDisabledAlarms *bool  `json:"keep_disabled_alarms"`
}

type updatePhoneRequest struct {
	Name               *string `json:"phone_name"`
	CompanionDeviceID  *string `json:"mobile_app_device_id"`
	KeepDisabledAlarms *bool   `json:"keep_disabled_alarms"`
}

func (s *Server) handlePhone(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		respondJSON(w, http.StatusOK, s.phoneView())
	case http.MethodPost:
		var req setupRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		keep := true
		if req.KeepDisabledAlarms != nil {
			keep = *req.KeepDisabledAlarms
		}
		if _, err := s.coord.SetupPhone(ctx, req.Name, req.CompanionDeviceID, keep); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusCreated, s.phoneView())
	case http.MethodPut:
		var req updatePhoneRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		update := domain.PhoneUpdate{
			Name:               req.Name,
			CompanionDeviceID:  req.CompanionDeviceID,
			KeepDisabledAlarms: req.KeepDisabledAlarms,
		}
		if err := s.coord.UpdatePhone(ctx, update); err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, s.phoneView())
	case http.MethodDelete:
		if err := s.coord.DeletePhone(ctx); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// alarmPayload mirrors what the phone's shortcut sends for each alarm.
type alarmPayload struct {
	AlarmID      string   `json:"alarm_id"`
	Label        *string  `json:"label"`
	Enabled      *bool    `json:"enabled"`
	Hour         *int     `json:"hour"`
	Minute       *int     `json:"minute"`
	Repeats      *bool    `json:"repeats"`
	RepeatDays   []string `json:"repeat_days"`
	AllowsSnooze *bool    `json:"allows_snooze"`
}

func (p alarmPayload) toDomain() domain.AlarmPayload {
	return domain.AlarmPayload{
		ID:           p.AlarmID,
		Label:        p.Label,
		Enabled:      p.Enabled,
		Hour:         p.Hour,
		Minute:       p.Minute,
		Repeats:      p.Repeats,
		RepeatDays:   p.RepeatDays,
		AllowsSnooze: p.AllowsSnooze,
	}
}

// SyncRequest is the body of POST /api/sync.
type SyncRequest struct {
	PhoneID string         `json:"phone_id"`
	Alarms  []alarmPayload `json:"alarms"`
}

// DomainBatch converts the request alarms.
func (req SyncRequest) DomainBatch() []domain.AlarmPayload {
	batch := make([]domain.AlarmPayload, 0, len(req.Alarms))
	for _, a := range req.Alarms {
		batch = append(batch, a.toDomain())
	}
	return batch
}

type syncResponse struct {
	NewIDs     []string `json:"new_ids"`
	RemovedIDs []string `json:"removed_ids"`
	Changed    bool     `json:"changed"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PhoneID == "" {
		req.PhoneID = r.URL.Query().Get("phone_id")
	}
	res, err := s.coord.Sync(r.Context(), req.PhoneID, req.DomainBatch())
	if err != nil {
		respondError(w, err)
		return
	}
	resp := syncResponse{NewIDs: res.NewIDs, RemovedIDs: res.RemovedIDs, Changed: res.Changed}
	if resp.NewIDs == nil {
		resp.NewIDs = []string{}
	}
	if resp.RemovedIDs == nil {
		resp.RemovedIDs = []string{}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListAlarms(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, NewAlarmViews(s.coord.Alarms(), s.coord.Now(), s.coord.Location()))
}

func (s *Server) handleGetAlarm(w http.ResponseWriter, r *http.Request) {
	a, ok := s.coord.Alarm(r.PathValue("id"))
	if !ok {
		respondError(w, domain.ErrAlarmNotFound)
		return
	}
	respondJSON(w, http.StatusOK, NewAlarmView(a, s.coord.Now(), s.coord.Location()))
}

type patchAlarmRequest struct {
	Label      *string `json:"label"`
	Icon       *string `json:"icon"`
	SnoozeTime *int    `json:"snooze_time"`
}

func (s *Server) handlePatchAlarm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req patchAlarmRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ctx := r.Context()
	if req.SnoozeTime != nil {
		// Reject a bad snooze before touching label or icon.
		a, ok := s.coord.Alarm(id)
		if !ok {
			respondError(w, fmt.Errorf("%w: %s", domain.ErrAlarmNotFound, id))
			return
		}
		if err := domain.ValidateSnoozeTime(a, *req.SnoozeTime); err != nil {
			respondError(w, err)
			return
		}
	}
	if req.Label != nil || req.Icon != nil {
		if err := s.coord.UpdateAlarmMetadata(ctx, id, req.Label, req.Icon); err != nil {
			respondError(w, err)
			return
		}
	}
	if req.SnoozeTime != nil {
		if err := s.coord.UpdateSnoozeTime(ctx, id, *req.SnoozeTime); err != nil {
			respondError(w, err)
			return
		}
	}
	s.handleGetAlarm(w, r)
}

func (s *Server) handleDeleteAlarm(w http.ResponseWriter, r *http.Request) {
	if err := s.coord.DeleteAlarm(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type eventRequest struct {
	Event string `json:"event"`
}

func (s *Server) handleAlarmEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ev, err := s.coord.ReportAlarmEvent(r.Context(), r.PathValue("id"), domain.EventKind(req.Event))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, NewEventViews([]domain.Event{ev})[0])
}

func (s *Server) handleDeviceEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ev, err := s.coord.ReportDeviceEvent(r.Context(), req.Event)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, NewEventViews([]domain.Event{ev})[0])
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, NewEventViews(s.coord.Events(q.Get("alarm_id"), limit)))
}

type timerView struct {
	Name  string     `json:"name"`
	State string     `json:"state"`
	Next  *time.Time `json:"next"`
}

type nextResponse struct {
	Next   *OccurrenceView `json:"next"`
	Timers []timerView     `json:"timers,omitempty"`
}

func (s *Server) handleNext(w http.ResponseWriter, _ *http.Request) {
	resp := nextResponse{Next: s.phoneView().NextAlarm}
	if s.opts.Tracker != nil {
		for _, st := range s.opts.Tracker.Snapshot() {
			tv := timerView{Name: st.Name, State: st.State.String()}
			if st.Armed {
				tv.Next = timePtr(st.Next.At)
			}
			resp.Timers = append(resp.Timers, tv)
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	p := s.coord.Phone()
	if p == nil {
		respondError(w, domain.ErrPhoneNotLoaded)
		return
	}
	base := s.opts.PublicURL
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, ErrInvalidQRSize)
			return
		}
		size = n
	}
	png, err := ShortcutQR(ShortcutURL(base, p.ID), size)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	initial, err := encodeEnvelope(MsgStateInit, s.phoneView())
	if err != nil {
		respondError(w, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warnf("ws upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	s.hub.serve(conn, r.RemoteAddr, initial)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAlarmNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrPhoneNotLoaded), errors.Is(err, domain.ErrPhoneExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidAlarm),
		errors.Is(err, domain.ErrUnknownEventKind),
		errors.Is(err, domain.ErrInvalidSnoozeTime),
		errors.Is(err, domain.ErrSnoozeNotAllowed),
		errors.Is(err, domain.ErrInvalidPhoneName),
		errors.Is(err, domain.ErrPhoneMismatch),
		errors.Is(err, ErrInvalidQRSize):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Errorf("request failed: %v", err)
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Errorf("encode JSON: %v", err)
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Debugf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
