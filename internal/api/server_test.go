package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/talgya/frontline/internal/config"
	"github.com/talgya/frontline/internal/engine"
	"github.com/talgya/frontline/internal/persistence"
	"github.com/talgya/frontline/internal/siege"
	"github.com/talgya/frontline/internal/territory"
	"github.com/talgya/frontline/internal/trust"
	"github.com/talgya/frontline/internal/world"
)

const adminKey = "s3cret"

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	cfg := config.Default()
	cfg.World = world.SmallTestConfig()
	c := engine.New(cfg, world.Generate(cfg.World))
	c.SetClock(func() time.Time { return epoch })
	s := &Server{Core: c, Sched: engine.NewScheduler(), AdminKey: adminKey}
	return s, s.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body any, auth string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func firstID(s *Server) territory.ID {
	return s.Core.Territory.All()[0].ID
}

func TestStatusAndTerritories(t *testing.T) {
	s, h := newServer(t)

	rec := do(t, h, "GET", "/api/v1/status", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var status struct {
		Name   string       `json:"name"`
		Stats  engine.Stats `json:"stats"`
		Paused bool         `json:"paused"`
	}
	decodeBody(t, rec, &status)
	if status.Name != "Frontline" || status.Stats.Territories != s.Core.Territory.Len() {
		t.Fatalf("status body: %+v", status)
	}

	rec = do(t, h, "GET", "/api/v1/territories", nil, "")
	var list []territorySummary
	decodeBody(t, rec, &list)
	if len(list) != s.Core.Territory.Len() {
		t.Fatalf("territories: got %d want %d", len(list), s.Core.Territory.Len())
	}
	if list[0].ControllerName != "Neutral" {
		t.Fatalf("fresh territory controller: %q", list[0].ControllerName)
	}

	rec = do(t, h, "GET", "/api/v1/territories?contested=true", nil, "")
	decodeBody(t, rec, &list)
	if len(list) != 0 {
		t.Fatalf("no territory should be contested yet, got %d", len(list))
	}
}

func TestTerritoryDetail(t *testing.T) {
	s, h := newServer(t)
	id := firstID(s)

	rec := do(t, h, "GET", "/api/v1/territory/"+strconv.Itoa(int(id)), nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("detail: got %d", rec.Code)
	}
	var body struct {
		Territory territory.Record `json:"territory"`
	}
	decodeBody(t, rec, &body)
	if body.Territory.ID != int(id) {
		t.Fatalf("detail id: got %d want %d", body.Territory.ID, id)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/territory/99999", http.StatusNotFound},
		{"/api/v1/territory/abc", http.StatusBadRequest},
		{"/api/v1/faction/99", http.StatusNotFound},
		{"/api/v1/siege/nope", http.StatusNotFound},
		{"/api/v1/route/nope", http.StatusNotFound},
		{"/api/v1/faction/3", http.StatusOK},
	}
	for _, tt := range tests {
		if rec := do(t, h, "GET", tt.path, nil, ""); rec.Code != tt.want {
			t.Fatalf("GET %s: got %d want %d", tt.path, rec.Code, tt.want)
		}
	}
}

func TestAdminAuth(t *testing.T) {
	s, h := newServer(t)
	body := map[string]any{"territory_id": firstID(s), "faction_id": 3, "delta": 10}

	if rec := do(t, h, "POST", "/api/v1/influence", body, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d", rec.Code)
	}
	if rec := do(t, h, "POST", "/api/v1/influence", body, "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: got %d", rec.Code)
	}

	s.AdminKey = ""
	h = s.Handler()
	if rec := do(t, h, "POST", "/api/v1/influence", body, "anything"); rec.Code != http.StatusForbidden {
		t.Fatalf("disabled admin: got %d", rec.Code)
	}
}

func TestInfluenceAndCapture(t *testing.T) {
	s, h := newServer(t)
	id := firstID(s)

	rec := do(t, h, "POST", "/api/v1/influence",
		map[string]any{"territory_id": id, "faction_id": 3, "delta": 60}, adminKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("influence: got %d %s", rec.Code, rec.Body)
	}
	var sum territorySummary
	decodeBody(t, rec, &sum)
	if sum.Controller != 3 || sum.ControllerName != "Ashfall Legion" {
		t.Fatalf("after influence: %+v", sum)
	}

	rec = do(t, h, "GET", "/api/v1/territories?faction=3", nil, "")
	var list []territorySummary
	decodeBody(t, rec, &list)
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("faction filter: %+v", list)
	}

	rec = do(t, h, "POST", "/api/v1/influence",
		map[string]any{"territory_id": 99999, "faction_id": 3, "delta": 5}, adminKey)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown territory: got %d", rec.Code)
	}

	rec = do(t, h, "GET", "/api/v1/events?topic=control_changed", nil, "")
	var evs []engine.Event
	decodeBody(t, rec, &evs)
	if len(evs) != 1 {
		t.Fatalf("control events: got %d want 1", len(evs))
	}

	// Faction 5 has no influence here, so the capture is refused.
	rec = do(t, h, "POST", "/api/v1/capture", map[string]any{"territory_id": id, "attacker": 5}, adminKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("capture: got %d %s", rec.Code, rec.Body)
	}
	var capture struct {
		Captured bool `json:"captured"`
	}
	decodeBody(t, rec, &capture)
	if capture.Captured {
		t.Fatal("capture without influence should fail")
	}
}

func TestRouteRequestErrors(t *testing.T) {
	s, h := newServer(t)
	id := int(firstID(s))

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"same endpoints", map[string]any{"faction": 3, "source_id": id, "dest_id": id}, http.StatusConflict},
		{"unknown source", map[string]any{"faction": 3, "source_id": 99998, "dest_id": 99999}, http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := do(t, h, "POST", "/api/v1/routes", tt.body, adminKey)
		if rec.Code != tt.want {
			t.Fatalf("%s: got %d want %d (%s)", tt.name, rec.Code, tt.want, rec.Body)
		}
	}
}

func TestTrustActions(t *testing.T) {
	s, h := newServer(t)
	id := firstID(s)
	if err := s.Core.Territory.ApplyInfluence(id, 3, 60); err != nil {
		t.Fatalf("apply: %v", err)
	}

	type reply struct {
		Record    trust.Record `json:"record"`
		Effective float64      `json:"effective"`
	}
	post := func(action string, body map[string]any) reply {
		t.Helper()
		body["a"], body["b"] = 10, 20
		rec := do(t, h, "POST", "/api/v1/trust/"+action, body, adminKey)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: got %d %s", action, rec.Code, rec.Body)
		}
		var v reply
		decodeBody(t, rec, &v)
		return v
	}
	near := func(a, b float64) bool { return a-b < 1e-9 && b-a < 1e-9 }

	if v := post("pledge", map[string]any{}); !near(v.Record.Trust, 0.1) || !v.Record.PledgeActive {
		t.Fatalf("pledge: %+v", v.Record)
	}
	if v := post("parley", map[string]any{"amount": 0.2}); !near(v.Record.Trust, 0.3) {
		t.Fatalf("parley: %+v", v.Record)
	}
	if v := post("siege_bonus", map[string]any{"amount": 0.3, "duration": "10m"}); !near(v.Effective, 0.6) {
		t.Fatalf("siege bonus: effective %v", v.Effective)
	}
	if v := post("breach", map[string]any{"amount": 0.05}); !near(v.Record.Trust, 0.25) || v.Record.PledgeActive {
		t.Fatalf("breach: %+v", v.Record)
	}
	// Betrayal on held ground: ×1.8 and decay escalation.
	v := post("betrayal", map[string]any{"territory_id": id, "amount": 0.1})
	if !near(v.Record.Trust, 0.07) || v.Record.Betrayals != 1 || v.Record.DecayRate != 1.5 {
		t.Fatalf("betrayal: %+v", v.Record)
	}
	// Faction 5 cooperating on ground held by faction 3: ×1.25.
	if v := post("cooperation", map[string]any{"faction_id": 5, "territory_id": id, "amount": 0.1}); !near(v.Record.Trust, 0.195) {
		t.Fatalf("cooperation: %+v", v.Record)
	}

	tests := []struct {
		name, action string
		body         map[string]any
		want         int
	}{
		{"self pair", "pledge", map[string]any{"a": 10, "b": 10}, http.StatusConflict},
		{"unknown action", "hug", map[string]any{"a": 10, "b": 20}, http.StatusBadRequest},
		{"bad duration", "siege_bonus", map[string]any{"a": 10, "b": 20, "amount": 0.1, "duration": "soon"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		rec := do(t, h, "POST", "/api/v1/trust/"+tt.action, tt.body, adminKey)
		if rec.Code != tt.want {
			t.Fatalf("%s: got %d want %d (%s)", tt.name, rec.Code, tt.want, rec.Body)
		}
	}
}

func TestSiegeLifecycle(t *testing.T) {
	s, h := newServer(t)
	id := firstID(s)

	rec := do(t, h, "POST", "/api/v1/sieges", map[string]any{
		"bound_territory":  id,
		"attackers":        []int{5},
		"defenders":        []int{3},
		"attacker_tickets": 20,
		"defender_tickets": 20,
		"stages": map[string]any{
			"probe": []map[string]string{{"id": "scout", "kind": "primary"}, {"id": "hold", "kind": "secondary"}},
		},
	}, adminKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("start: got %d %s", rec.Code, rec.Body)
	}
	var v siege.View
	decodeBody(t, rec, &v)
	if v.ID == "" || v.Phase != "probe" || len(v.Stages) != 2 {
		t.Fatalf("started siege: %+v", v)
	}

	rec = do(t, h, "POST", "/api/v1/siege/"+v.ID+"/complete", map[string]string{"stage": "scout"}, adminKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: got %d %s", rec.Code, rec.Body)
	}
	decodeBody(t, rec, &v)
	if !v.Stages[0].Done {
		t.Fatalf("stage scout should be done: %+v", v.Stages)
	}

	rec = do(t, h, "POST", "/api/v1/siege/"+v.ID+"/consume", map[string]any{"side": "attacker", "amount": 3}, adminKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("consume: got %d %s", rec.Code, rec.Body)
	}
	decodeBody(t, rec, &v)
	if v.AttackerTickets != 17 {
		t.Fatalf("attacker tickets: got %d want 17", v.AttackerTickets)
	}

	if rec := do(t, h, "POST", "/api/v1/siege/"+v.ID+"/bogus", nil, adminKey); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown action: got %d", rec.Code)
	}
	if rec := do(t, h, "POST", "/api/v1/siege/"+v.ID+"/consume", map[string]any{"side": "left"}, adminKey); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad side: got %d", rec.Code)
	}
	if rec := do(t, h, "POST", "/api/v1/siege/missing/advance", nil, adminKey); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown siege: got %d", rec.Code)
	}

	rec = do(t, h, "POST", "/api/v1/sieges", map[string]any{
		"bound_territory":  id,
		"attackers":        []int{5},
		"defenders":        []int{3},
		"attacker_tickets": 1,
		"defender_tickets": 1,
		"stages":           map[string]any{"charge": []any{}},
	}, adminKey)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown phase: got %d", rec.Code)
	}

	rec = do(t, h, "GET", "/api/v1/sieges", nil, "")
	var all []siege.View
	decodeBody(t, rec, &all)
	if len(all) != 1 {
		t.Fatalf("sieges: got %d want 1", len(all))
	}
}

func TestSnapshotAndHistory(t *testing.T) {
	s, h := newServer(t)
	if rec := do(t, h, "POST", "/api/v1/snapshot", nil, adminKey); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("snapshot without db: got %d", rec.Code)
	}

	db, err := persistence.Open(filepath.Join(t.TempDir(), "frontline.db"), 5)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	s.DB = db
	s.Archive = persistence.NewArchive(filepath.Join(t.TempDir(), "snapshots"), 3)
	h = s.Handler()

	rec := do(t, h, "POST", "/api/v1/snapshot", nil, adminKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: got %d %s", rec.Code, rec.Body)
	}
	var resp struct {
		Archive string `json:"archive"`
	}
	decodeBody(t, rec, &resp)
	if resp.Archive == "" {
		t.Fatal("snapshot should be archived")
	}

	rec = do(t, h, "GET", "/api/v1/history", nil, "")
	var hist []persistence.HistoryEntry
	decodeBody(t, rec, &hist)
	if len(hist) != 1 {
		t.Fatalf("history: got %d entries want 1", len(hist))
	}
	if snap, err := db.LoadSnapshot(); err != nil || snap == nil {
		t.Fatalf("load after snapshot: %v", err)
	}
}

func TestPause(t *testing.T) {
	s, h := newServer(t)
	rec := do(t, h, "POST", "/api/v1/pause", map[string]bool{"paused": true}, adminKey)
	if rec.Code != http.StatusOK || !s.Sched.Paused() {
		t.Fatalf("pause: got %d paused=%v", rec.Code, s.Sched.Paused())
	}
	do(t, h, "POST", "/api/v1/pause", map[string]bool{"paused": false}, adminKey)
	if s.Sched.Paused() {
		t.Fatal("resume did not take")
	}
}

func TestCORS(t *testing.T) {
	s, _ := newServer(t)
	s.Origins = []string{"https://front.example.com"}
	h := s.Handler()

	req := httptest.NewRequest("OPTIONS", "/api/v1/status", nil)
	req.Header.Set("Origin", "https://front.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "https://front.example.com" {
		t.Fatalf("preflight: %d %v", rec.Code, rec.Header())
	}
}

func TestRateLimiter(t *testing.T) {
	now := epoch
	rl := NewRateLimiter(1, 2)
	rl.Now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow("10.0.0.1"); !ok {
			t.Fatalf("request %d within burst refused", i)
		}
	}
	ok, wait := rl.Allow("10.0.0.1")
	if ok || wait <= 0 || wait > time.Second {
		t.Fatalf("over burst: ok=%v wait=%v", ok, wait)
	}
	if ok, _ := rl.Allow("10.0.0.2"); !ok {
		t.Fatal("other IPs have their own bucket")
	}
	now = now.Add(time.Second)
	if ok, _ := rl.Allow("10.0.0.1"); !ok {
		t.Fatal("a token should refill after a second")
	}

	now = now.Add(time.Hour)
	rl.Allow("10.0.0.3")
	if rl.Len() != 1 {
		t.Fatalf("idle buckets should be swept, have %d", rl.Len())
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	h := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	rec := httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first: got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	h(rec, req)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("second: got %d", rec.Code)
	}
}
