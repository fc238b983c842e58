package testserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rpggio/triagewatch/internal/domain/activity"
	"github.com/rpggio/triagewatch/internal/domain/finding"
	"github.com/rpggio/triagewatch/internal/domain/triage"
)

// TestServer is a fake CTEM backend serving the REST and event-stream API.
type TestServer struct {
	Server *httptest.Server
	Token  string

	mu         sync.Mutex
	findings   map[string]finding.Finding
	triage     map[string]triage.Result
	activities map[string][]activity.RawActivity // newest first
	streams    map[string]map[int]chan []byte
	nextStream int
	failures   map[string][]int
	requests   map[string]int
}

// New starts a fake backend. An empty token disables authentication.
func New(t *testing.T, token string) *TestServer {
	t.Helper()

	ts := &TestServer{
		Token:      token,
		findings:   make(map[string]finding.Finding),
		triage:     make(map[string]triage.Result),
		activities: make(map[string][]activity.RawActivity),
		streams:    make(map[string]map[int]chan []byte),
		failures:   make(map[string][]int),
		requests:   make(map[string]int),
	}

	r := chi.NewRouter()
	r.Use(ts.countRequests)
	r.Use(ts.injectFailures)
	r.Use(ts.requireToken)
	r.Get("/findings/{id}", ts.handleGetFinding)
	r.Get("/findings/{id}/triage", ts.handleGetTriage)
	r.Get("/findings/{id}/activities", ts.handleListActivities)
	r.Post("/findings/{id}/comments", ts.handlePostComment)
	r.Get("/findings/{id}/stream", ts.handleStream)

	ts.Server = httptest.NewServer(r)
	t.Cleanup(func() {
		ts.DropStreams()
		ts.Server.Close()
	})

	return ts
}

// URL returns the base URL of the fake backend.
func (ts *TestServer) URL() string {
	return ts.Server.URL
}

// AddFinding stores a finding.
func (ts *TestServer) AddFinding(f finding.Finding) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.findings[f.ID] = f
}

// SetTriage stores the triage result of a finding.
func (ts *TestServer) SetTriage(res triage.Result) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.triage[res.FindingID] = res
}

// AddActivities appends history records for a finding, newest first.
func (ts *TestServer) AddActivities(findingID string, raws ...activity.RawActivity) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for i := range raws {
		raws[i].FindingID = findingID
	}
	ts.activities[findingID] = append(ts.activities[findingID], raws...)
}

// Publish stores a record at the head of the history and pushes it to every
// open stream of the finding.
func (ts *TestServer) Publish(findingID string, raw activity.RawActivity) {
	raw.FindingID = findingID
	if raw.ID == "" {
		raw.ID = uuid.NewString()
	}
	if raw.CreatedAt == "" {
		raw.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, _ := json.Marshal(raw)

	ts.mu.Lock()
	ts.activities[findingID] = append([]activity.RawActivity{raw}, ts.activities[findingID]...)
	for _, ch := range ts.streams[findingID] {
		select {
		case ch <- data:
		default:
		}
	}
	ts.mu.Unlock()
}

// PushOnly sends a record to open streams without storing it in history.
func (ts *TestServer) PushOnly(findingID string, raw activity.RawActivity) {
	raw.FindingID = findingID
	data, _ := json.Marshal(raw)

	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, ch := range ts.streams[findingID] {
		select {
		case ch <- data:
		default:
		}
	}
}

// PushRaw sends an arbitrary data payload to open streams of a finding.
func (ts *TestServer) PushRaw(findingID, payload string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, ch := range ts.streams[findingID] {
		select {
		case ch <- []byte(payload):
		default:
		}
	}
}

// StreamCount returns the number of open streams for a finding.
func (ts *TestServer) StreamCount(findingID string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.streams[findingID])
}

// DropStreams closes every open stream.
func (ts *TestServer) DropStreams() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for findingID, chans := range ts.streams {
		for id, ch := range chans {
			close(ch)
			delete(chans, id)
		}
		delete(ts.streams, findingID)
	}
}

// FailNext makes the next len(statuses) requests to path fail with the given
// statuses, in order.
func (ts *TestServer) FailNext(path string, statuses ...int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.failures[path] = append(ts.failures[path], statuses...)
}

// Requests returns how many requests reached path.
func (ts *TestServer) Requests(path string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.requests[path]
}

func (ts *TestServer) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.requests[r.URL.Path]++
		ts.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (ts *TestServer) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		pending := ts.failures[r.URL.Path]
		status := 0
		if len(pending) > 0 {
			status = pending[0]
			ts.failures[r.URL.Path] = pending[1:]
		}
		ts.mu.Unlock()

		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (ts *TestServer) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ts.Token != "" {
			token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if token != ts.Token {
				http.Error(w, "invalid bearer token", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (ts *TestServer) handleGetFinding(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	f, ok := ts.findings[chi.URLParam(r, "id")]
	ts.mu.Unlock()
	if !ok {
		http.Error(w, "finding not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (ts *TestServer) handleGetTriage(w http.ResponseWriter, r *http.Request) {
	ts.mu.Lock()
	res, ok := ts.triage[chi.URLParam(r, "id")]
	ts.mu.Unlock()
	if !ok {
		http.Error(w, "triage not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (ts *TestServer) handleListActivities(w http.ResponseWriter, r *http.Request) {
	findingID := chi.URLParam(r, "id")
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 {
		pageSize = 50
	}

	ts.mu.Lock()
	all := append([]activity.RawActivity(nil), ts.activities[findingID]...)
	ts.mu.Unlock()

	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	writeJSON(w, http.StatusOK, activity.RawPage{
		Items:      all[start:end],
		Total:      len(all),
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (len(all) + pageSize - 1) / pageSize,
	})
}

func (ts *TestServer) handlePostComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Content) == "" {
		http.Error(w, "content required", http.StatusBadRequest)
		return
	}

	ts.Publish(chi.URLParam(r, "id"), activity.RawActivity{
		ActivityType: "comment",
		ActorType:    "user",
		ActorID:      "u-test",
		ActorName:    "Test User",
		ActorEmail:   "test@example.com",
		Content:      body.Content,
	})
	w.WriteHeader(http.StatusCreated)
}

func (ts *TestServer) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	findingID := chi.URLParam(r, "id")

	ch := make(chan []byte, 16)
	ts.mu.Lock()
	ts.nextStream++
	id := ts.nextStream
	if ts.streams[findingID] == nil {
		ts.streams[findingID] = make(map[int]chan []byte)
	}
	ts.streams[findingID][id] = ch
	ts.mu.Unlock()

	defer func() {
		ts.mu.Lock()
		if chans, ok := ts.streams[findingID]; ok {
			if _, open := chans[id]; open {
				delete(chans, id)
			}
		}
		ts.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case data, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "event: activity\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
