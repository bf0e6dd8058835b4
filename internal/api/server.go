// Package api provides the HTTP API for observing and steering the front.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/frontline/internal/engine"
	"github.com/talgya/frontline/internal/events"
	"github.com/talgya/frontline/internal/fault"
	"github.com/talgya/frontline/internal/persistence"
	"github.com/talgya/frontline/internal/routes"
	"github.com/talgya/frontline/internal/siege"
	"github.com/talgya/frontline/internal/social"
	"github.com/talgya/frontline/internal/territory"
	"github.com/talgya/frontline/internal/wire"
)

// Server serves the core over HTTP.
type Server struct {
	Core     *engine.Core
	Sched    *engine.Scheduler    // optional; enables /pause
	DB       *persistence.DB      // optional; enables /snapshot and /history
	Archive  *persistence.Archive // optional
	Hub      *wire.Hub            // optional; mounts /ws
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.
	Origins  []string

	srv *http.Server
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	reads := NewRateLimiter(20, 40)
	writes := NewRateLimiter(5, 10)
	get := func(h http.HandlerFunc) http.HandlerFunc { return RateLimitMiddleware(reads, h) }
	post := func(h http.HandlerFunc) http.HandlerFunc { return RateLimitMiddleware(writes, s.adminOnly(h)) }

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("GET /api/v1/status", get(s.handleStatus))
	mux.HandleFunc("GET /api/v1/territories", get(s.handleTerritories))
	mux.HandleFunc("GET /api/v1/territory/{id}", get(s.handleTerritoryDetail))
	mux.HandleFunc("GET /api/v1/factions", get(s.handleFactions))
	mux.HandleFunc("GET /api/v1/faction/{id}", get(s.handleFactionDetail))
	mux.HandleFunc("GET /api/v1/routes", get(s.handleRoutes))
	mux.HandleFunc("GET /api/v1/route/{id}", get(s.handleRouteDetail))
	mux.HandleFunc("GET /api/v1/sieges", get(s.handleSieges))
	mux.HandleFunc("GET /api/v1/siege/{id}", get(s.handleSiegeDetail))
	mux.HandleFunc("GET /api/v1/trust", get(s.handleTrust))
	mux.HandleFunc("GET /api/v1/balance", get(s.handleBalance))
	mux.HandleFunc("GET /api/v1/events", get(s.handleEvents))
	mux.HandleFunc("GET /api/v1/history", get(s.handleHistory))

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("POST /api/v1/influence", post(s.handleInfluence))
	mux.HandleFunc("POST /api/v1/capture", post(s.handleCapture))
	mux.HandleFunc("POST /api/v1/routes", post(s.handleRouteRequest))
	mux.HandleFunc("POST /api/v1/sieges", post(s.handleSiegeStart))
	mux.HandleFunc("POST /api/v1/siege/{id}/{action}", post(s.handleSiegeAction))
	mux.HandleFunc("POST /api/v1/trust/{action}", post(s.handleTrustAction))
	mux.HandleFunc("POST /api/v1/snapshot", post(s.handleSnapshot))
	mux.HandleFunc("POST /api/v1/pause", post(s.handlePause))

	if s.Hub != nil {
		mux.HandleFunc("GET /ws", s.Hub.Handler())
	}
	return corsMiddleware(s.Origins, mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "ws", s.Hub != nil)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Localhost dev servers are always allowed.
func corsMiddleware(origins []string, next http.Handler) http.Handler {
	allowed := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	for _, o := range origins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no FRONTLINE_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fault.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, fault.ErrOverLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, fault.ErrThresholdViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fault.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, fault.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

func pathUint(w http.ResponseWriter, r *http.Request, name string) (uint64, bool) {
	n, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

// queryFaction reads an optional ?faction= filter.
func queryFaction(r *http.Request) (social.FactionID, bool) {
	n, err := strconv.ParseUint(r.URL.Query().Get("faction"), 10, 64)
	if err != nil {
		return 0, false
	}
	return social.FactionID(n), true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":  "Frontline",
		"stats": s.Core.Stats(),
	}
	if s.Sched != nil {
		status["paused"] = s.Sched.Paused()
		status["steps"] = s.Sched.Steps()
		status["jobs"] = s.Sched.Stats()
	}
	if s.Hub != nil {
		status["clients"] = s.Hub.Len()
	}
	writeJSON(w, status)
}

type territorySummary struct {
	ID                 territory.ID     `json:"id"`
	Name               string           `json:"name"`
	Type               string           `json:"type"`
	ParentID           territory.ID     `json:"parent_id,omitempty"`
	Controller         social.FactionID `json:"controller"`
	ControllerName     string           `json:"controller_name"`
	Contested          bool             `json:"contested"`
	StrategicValue     int              `json:"strategic_value"`
	ResourceMultiplier float64          `json:"resource_multiplier"`
	Center             [2]float64       `json:"center"`
}

func (s *Server) summarize(t territory.Territory) territorySummary {
	return territorySummary{
		ID:                 t.ID,
		Name:               t.Name,
		Type:               t.Type.String(),
		ParentID:           t.ParentID,
		Controller:         t.Controller,
		ControllerName:     s.Core.Roster.Name(t.Controller),
		Contested:          t.Contested,
		StrategicValue:     t.StrategicValue,
		ResourceMultiplier: t.ResourceMultiplier,
		Center:             [2]float64{t.Bounds.Center.X, t.Bounds.Center.Y},
	}
}

// handleTerritories lists territories, optionally filtered by
// ?faction=, ?type=, or ?contested=true.
func (s *Server) handleTerritories(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	faction, byFaction := queryFaction(r)
	typ := q.Get("type")
	contested := q.Get("contested") == "true"

	out := make([]territorySummary, 0, s.Core.Territory.Len())
	for _, t := range s.Core.Territory.All() {
		if byFaction && t.Controller != faction {
			continue
		}
		if typ != "" && t.Type.String() != typ {
			continue
		}
		if contested && !t.Contested {
			continue
		}
		out = append(out, s.summarize(t))
	}
	writeJSON(w, out)
}

func (s *Server) handleTerritoryDetail(w http.ResponseWriter, r *http.Request) {
	n, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	id := territory.ID(n)
	t, found := s.Core.Territory.Get(id)
	if !found {
		writeError(w, fmt.Errorf("territory %d: %w", id, fault.ErrNotFound))
		return
	}

	children := []territory.ID{}
	for _, c := range s.Core.Territory.Children(id) {
		children = append(children, c.ID)
	}
	sieges := []siege.View{}
	for _, v := range s.Core.Sieges.All() {
		if v.Territory == id {
			sieges = append(sieges, v)
		}
	}
	var onPath []string
	for _, rt := range s.Core.Routes.All() {
		if slices.Contains(rt.Path, id) {
			onPath = append(onPath, rt.ID)
		}
	}

	writeJSON(w, map[string]any{
		"territory":       t.ToRecord(),
		"controller_name": s.Core.Roster.Name(t.Controller),
		"children":        children,
		"sieges":          sieges,
		"routes":          onPath,
	})
}

func (s *Server) handleFactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Core.Factions())
}

func (s *Server) handleFactionDetail(w http.ResponseWriter, r *http.Request) {
	n, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	f, found := s.Core.Faction(social.FactionID(n))
	if !found {
		writeError(w, fmt.Errorf("faction %d: %w", n, fault.ErrNotFound))
		return
	}
	writeJSON(w, map[string]any{
		"faction":    f,
		"objectives": s.Core.Progression.Objectives(f.ID),
		"routes":     s.Core.Routes.RoutesFor(f.ID),
	})
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	if f, ok := queryFaction(r); ok {
		writeJSON(w, s.Core.Routes.RoutesFor(f))
		return
	}
	writeJSON(w, s.Core.Routes.All())
}

func (s *Server) handleRouteDetail(w http.ResponseWriter, r *http.Request) {
	rt, ok := s.Core.Routes.Get(r.PathValue("id"))
	if !ok {
		writeError(w, fmt.Errorf("route %s: %w", r.PathValue("id"), fault.ErrNotFound))
		return
	}
	writeJSON(w, rt)
}

func (s *Server) handleSieges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Core.Sieges.All())
}

func (s *Server) handleSiegeDetail(w http.ResponseWriter, r *http.Request) {
	v, ok := s.Core.Sieges.Get(r.PathValue("id"))
	if !ok {
		writeError(w, fmt.Errorf("siege %s: %w", r.PathValue("id"), fault.ErrNotFound))
		return
	}
	writeJSON(w, v)
}

// handleTrust returns faction relations, or one player pair with ?a=&b=.
func (s *Server) handleTrust(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Has("a") || q.Has("b") {
		a, errA := strconv.ParseUint(q.Get("a"), 10, 64)
		b, errB := strconv.ParseUint(q.Get("b"), 10, 64)
		if errA != nil || errB != nil {
			http.Error(w, "a and b must be player ids", http.StatusBadRequest)
			return
		}
		pa, pb := social.PlayerID(a), social.PlayerID(b)
		rec, ok := s.Core.Trust.Get(pa, pb)
		if !ok {
			writeError(w, fmt.Errorf("trust %d-%d: %w", a, b, fault.ErrNotFound))
			return
		}
		writeJSON(w, map[string]any{
			"record":    rec,
			"effective": s.Core.Trust.EffectiveTrust(pa, pb),
		})
		return
	}
	writeJSON(w, map[string]any{
		"relations": s.Core.Trust.Relations(),
		"players":   len(s.Core.Trust.Records()),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	a := s.Core.Analyst
	multipliers := make(map[social.FactionID]float64)
	for _, id := range s.Core.Roster.IDs() {
		multipliers[id] = a.Multiplier(id)
	}
	experiments := make(map[string]any)
	for _, name := range a.Experiments() {
		res, _ := a.Results(name)
		experiments[name] = res
	}
	writeJSON(w, map[string]any{
		"latest":      a.Latest(),
		"alerts":      a.Alerts(),
		"emergency":   a.Emergency(),
		"multipliers": multipliers,
		"integrity":   s.Core.Integrity.Value(),
		"experiments": experiments,
	})
}

// handleEvents returns the most recent events, optionally filtered by ?topic=.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	evs := s.Core.Events(0)
	if topic := r.URL.Query().Get("topic"); topic != "" {
		var filtered []engine.Event
		for _, e := range evs {
			if e.Topic == events.Topic(topic) {
				filtered = append(filtered, e)
			}
		}
		evs = filtered
	}

	start := 0
	if len(evs) > limit {
		start = len(evs) - limit
	}
	out := evs[start:]
	if out == nil {
		out = []engine.Event{}
	}
	writeJSON(w, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeError(w, fmt.Errorf("database: %w", fault.ErrUnavailable))
		return
	}
	hist, err := s.DB.History()
	if err != nil {
		slog.Error("history read failed", "error", err)
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if hist == nil {
		hist = []persistence.HistoryEntry{}
	}
	writeJSON(w, hist)
}

func (s *Server) handleInfluence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Territory territory.ID     `json:"territory_id"`
		Faction   social.FactionID `json:"faction_id"`
		Delta     float64          `json:"delta"`
	}
	if !decode(w, r, &req) {
		return
	}
	applied, err := s.Core.Territory.ApplyAction(req.Territory, req.Faction, req.Delta)
	if err != nil {
		writeError(w, err)
		return
	}
	t, _ := s.Core.Territory.Get(req.Territory)
	slog.Info("admin influence", "territory", req.Territory, "faction", req.Faction, "delta", fmt.Sprintf("%.3f", applied))
	writeJSON(w, s.summarize(t))
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Territory territory.ID     `json:"territory_id"`
		Attacker  social.FactionID `json:"attacker"`
	}
	if !decode(w, r, &req) {
		return
	}
	captured, err := s.Core.Territory.AttemptCapture(req.Territory, req.Attacker)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"captured": captured})
}

func (s *Server) handleRouteRequest(w http.ResponseWriter, r *http.Request) {
	var req routes.Request
	if !decode(w, r, &req) {
		return
	}
	id, err := s.Core.Routes.RequestRoute(req)
	if err != nil {
		writeError(w, err)
		return
	}
	rt, _ := s.Core.Routes.Get(id)
	writeJSON(w, rt)
}

type stageRequest struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// siegeRequest is a siege.Plan with stages keyed by phase name.
type siegeRequest struct {
	siege.Plan
	Stages map[string][]stageRequest `json:"stages"`
}

func (req siegeRequest) plan() (siege.Plan, error) {
	p := req.Plan
	p.Stages = make(map[siege.Phase][]siege.Stage, len(req.Stages))
	for name, stages := range req.Stages {
		ph, ok := siege.ParsePhase(name)
		if !ok {
			return p, fmt.Errorf("unknown phase %q", name)
		}
		for _, st := range stages {
			kind, ok := siege.ParseStageKind(st.Kind)
			if !ok {
				return p, fmt.Errorf("unknown stage kind %q", st.Kind)
			}
			p.Stages[ph] = append(p.Stages[ph], siege.Stage{ID: st.ID, Kind: kind})
		}
	}
	return p, nil
}

func (s *Server) handleSiegeStart(w http.ResponseWriter, r *http.Request) {
	var req siegeRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := req.plan()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := s.Core.Territory.Get(p.Territory); !ok {
		writeError(w, fmt.Errorf("territory %d: %w", p.Territory, fault.ErrNotFound))
		return
	}
	id, err := s.Core.Sieges.Start(p)
	if err != nil {
		writeError(w, err)
		return
	}
	v, _ := s.Core.Sieges.Get(id)
	writeJSON(w, v)
}

// handleSiegeAction applies one admin action to a live siege:
// complete, fail, advance, dominance, modifier, consume, or refill.
func (s *Server) handleSiegeAction(w http.ResponseWriter, r *http.Request) {
	id, action := r.PathValue("id"), r.PathValue("action")
	var req struct {
		Stage      string  `json:"stage"`
		Amount     float64 `json:"amount"`
		Multiplier float64 `json:"multiplier"`
		Duration   string  `json:"duration"`
		Side       string  `json:"side"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	m := s.Core.Sieges
	var err error
	switch action {
	case "complete":
		err = m.CompleteStage(id, req.Stage)
	case "fail":
		err = m.FailStage(id, req.Stage)
	case "advance":
		err = m.Advance(id)
	case "dominance":
		err = m.AddDominance(id, req.Amount)
	case "modifier":
		d, perr := time.ParseDuration(req.Duration)
		if perr != nil {
			http.Error(w, "duration must be a Go duration such as 30s", http.StatusBadRequest)
			return
		}
		err = m.ApplyModifier(id, req.Multiplier, d)
	case "consume", "refill":
		side, ok := siege.ParseSide(req.Side)
		if !ok {
			http.Error(w, "side must be attacker or defender", http.StatusBadRequest)
			return
		}
		if action == "consume" {
			err = m.ConsumeTickets(id, side, int(req.Amount))
		} else {
			err = m.RefillTickets(id, side, int(req.Amount))
		}
	default:
		http.Error(w, "unknown siege action (use: complete, fail, advance, dominance, modifier, consume, refill)", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	v, ok := m.Get(id)
	if !ok {
		// The action ended the siege and it was disposed.
		writeJSON(w, map[string]any{"id": id, "disposed": true})
		return
	}
	writeJSON(w, v)
}

func (s *Server) handleTrustAction(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	var req struct {
		A         social.PlayerID  `json:"a"`
		B         social.PlayerID  `json:"b"`
		Faction   social.FactionID `json:"faction_id"`
		Territory territory.ID     `json:"territory_id"`
		Amount    float64          `json:"amount"`
		Duration  string           `json:"duration"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.A == 0 || req.B == 0 {
		http.Error(w, "a and b must be player ids", http.StatusBadRequest)
		return
	}

	l := s.Core.Trust
	var err error
	switch action {
	case "pledge":
		err = l.RecordPledge(req.A, req.B)
	case "parley":
		err = l.RecordParley(req.A, req.B, req.Amount)
	case "breach":
		err = l.RecordBreach(req.A, req.B, req.Amount)
	case "cooperation":
		err = l.RecordCooperation(req.A, req.B, req.Faction, req.Territory, req.Amount)
	case "betrayal":
		err = l.RecordBetrayal(req.A, req.B, req.Territory, req.Amount)
	case "siege_bonus":
		d, perr := time.ParseDuration(req.Duration)
		if perr != nil || d <= 0 {
			http.Error(w, "duration must be a positive Go duration such as 10m", http.StatusBadRequest)
			return
		}
		err = l.ApplySiegeTrustBonus(req.A, req.B, req.Amount, d)
	default:
		http.Error(w, "unknown trust action (use: pledge, parley, breach, cooperation, betrayal, siege_bonus)", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	rec, _ := l.Get(req.A, req.B)
	slog.Info("admin trust action", "action", action, "a", req.A, "b", req.B, "trust", fmt.Sprintf("%.3f", rec.Trust))
	writeJSON(w, map[string]any{
		"record":    rec,
		"effective": l.EffectiveTrust(req.A, req.B),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		writeError(w, fmt.Errorf("database: %w", fault.ErrUnavailable))
		return
	}
	snap := s.Core.Snapshot()
	if err := s.DB.SaveSnapshot(snap); err != nil {
		slog.Error("snapshot save failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	resp := map[string]any{
		"taken_at": snap.TakenAt,
		"message":  "snapshot saved",
	}
	if s.Archive != nil {
		path, err := s.Archive.Write(snap)
		if err != nil {
			slog.Warn("snapshot archive failed", "error", err)
		} else {
			resp["archive"] = path
		}
	}
	writeJSON(w, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if s.Sched == nil {
		writeError(w, fmt.Errorf("scheduler: %w", fault.ErrUnavailable))
		return
	}
	var req struct {
		Paused bool `json:"paused"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Paused {
		s.Sched.Pause()
	} else {
		s.Sched.Resume()
	}
	slog.Info("scheduler paused changed", "paused", req.Paused)
	writeJSON(w, map[string]bool{"paused": s.Sched.Paused()})
}
