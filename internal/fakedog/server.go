// Package fakedog serves an in-memory imitation of the Datadog monitor API
// for tests.
package fakedog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/dogpushhq/dogpush/internal/logging"
)

const (
	headerAPIKey = "DD-API-KEY"
	headerAppKey = "DD-APPLICATION-KEY"
)

// Config controls request authentication. Empty keys accept any request.
type Config struct {
	APIKey string
	AppKey string
}

// Dependencies holds external collaborators required by the server.
type Dependencies struct {
	Logger logrus.FieldLogger
	Store  *Store
	Now    func() time.Time
}

// Server routes monitor API requests to a Store and counts them.
type Server struct {
	router *mux.Router
	store  *Store

	mu    sync.Mutex
	calls map[string]int
}

// New constructs the fake API.
func New(cfg Config, deps Dependencies) *Server {
	logger := logging.OrDiscard(deps.Logger)
	if deps.Store == nil {
		deps.Store = NewStore(deps.Now)
	}
	s := &Server{store: deps.Store, calls: make(map[string]int)}

	r := mux.NewRouter()
	r.Use(s.countMiddleware, authMiddleware(cfg))
	r.HandleFunc("/api/v1/monitor", listHandler(deps.Store)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/monitor", createHandler(deps.Store, logger)).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/monitor/{id:[0-9]+}", getHandler(deps.Store)).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/monitor/{id:[0-9]+}", updateHandler(deps.Store, logger)).Methods(http.MethodPut)
	r.HandleFunc("/api/v1/monitor/{id:[0-9]+}", deleteHandler(deps.Store)).Methods(http.MethodDelete)
	r.HandleFunc("/api/v1/monitor/{id:[0-9]+}/mute", muteHandler(deps.Store)).Methods(http.MethodPost)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Store returns the backing store.
func (s *Server) Store() *Store {
	return s.store
}

// Calls returns how many requests with the given method were served.
func (s *Server) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// Writes returns the number of POST, PUT and DELETE requests served.
func (s *Server) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[http.MethodPost] + s.calls[http.MethodPut] + s.calls[http.MethodDelete]
}

// ResetCalls zeroes the request counters.
func (s *Server) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]int)
}

func (s *Server) countMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.Method]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func authMiddleware(cfg Config) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.APIKey != "" && r.Header.Get(headerAPIKey) != cfg.APIKey {
				writeErrors(w, http.StatusForbidden, "Forbidden")
				return
			}
			if cfg.AppKey != "" && r.Header.Get(headerAppKey) != cfg.AppKey {
				writeErrors(w, http.StatusForbidden, "Forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func listHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		monitors := store.List()
		if r.URL.Query().Get("with_downtimes") == "true" {
			for _, m := range monitors {
				m["matching_downtimes"] = []any{}
			}
		}
		writeJSON(w, http.StatusOK, monitors)
	}
}

func getHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, ok := store.Get(pathID(r))
		if !ok {
			writeErrors(w, http.StatusNotFound, "Monitor not found")
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func createHandler(store *Store, logger logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := decodeMonitor(w, r)
		if !ok {
			return
		}
		m := store.Create(body)
		logger.WithField("id", m["id"]).Debug("fakedog: monitor created")
		writeJSON(w, http.StatusOK, m)
	}
}

func updateHandler(store *Store, logger logrus.FieldLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, ok := decodeMonitor(w, r)
		if !ok {
			return
		}
		m, err := store.Update(pathID(r), body)
		if errors.Is(err, ErrNotFound) {
			writeErrors(w, http.StatusNotFound, "Monitor not found")
			return
		}
		logger.WithField("id", m["id"]).Debug("fakedog: monitor updated")
		writeJSON(w, http.StatusOK, m)
	}
}

func deleteHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := pathID(r)
		if err := store.Delete(id); err != nil {
			writeErrors(w, http.StatusNotFound, "Monitor not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"deleted_monitor_id": id})
	}
}

func muteHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			End int64 `json:"end"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeErrors(w, http.StatusBadRequest, "invalid json")
			return
		}
		m, err := store.Mute(pathID(r), req.End)
		if err != nil {
			writeErrors(w, http.StatusNotFound, "Monitor not found")
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

func decodeMonitor(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErrors(w, http.StatusBadRequest, "invalid json")
		return nil, false
	}
	var problems []string
	if name, _ := body["name"].(string); name == "" {
		problems = append(problems, "Missing 'name' parameter")
	}
	if typ, _ := body["type"].(string); typ == "" {
		problems = append(problems, "Missing 'type' parameter")
	}
	if len(problems) > 0 {
		writeErrors(w, http.StatusBadRequest, problems...)
		return nil, false
	}
	return body, true
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrors(w http.ResponseWriter, status int, messages ...string) {
	writeJSON(w, status, map[string][]string{"errors": messages})
}
