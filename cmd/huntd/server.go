package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/veillant/huntd/hunter"
	"github.com/veillant/huntd/missions"
	"github.com/veillant/huntd/users"
)

type server struct {
	missions  *missions.Store
	users     *users.Store
	engine    *hunter.Engine
	notifier  hunter.Notifier
	tokenHash string
	logger    *slog.Logger
}

func newServer(m *missions.Store, u *users.Store, e *hunter.Engine, n hunter.Notifier, tokenHash string, logger *slog.Logger) *server {
	if logger == nil {
		logger = slog.Default()
	}
	if tokenHash == "" {
		logger.Warn("huntd: no api token hash configured, api is unauthenticated")
	}
	return &server{missions: m, users: u, engine: e, notifier: n, tokenHash: tokenHash, logger: logger}
}

func (s *server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)

		r.Route("/api/issuers/{issuer}/missions", func(r chi.Router) {
			r.Get("/", s.handleListMissions)
			r.Post("/", s.handleAddMission)
			r.Delete("/{index}", s.handleRemoveMission)
			r.Post("/{index}/replacers", s.handleAddReplacer)
			r.Post("/{index}/check", s.handleCheck)
		})

		r.Route("/api/users", func(r chi.Router) {
			r.Get("/", s.handleListUsers)
			r.Post("/", s.handleAddUser)
			r.Delete("/{id}", s.handleRemoveUser)
		})
	})

	return r
}

// requireToken checks the bearer token against the configured bcrypt
// hash. An empty hash disables authentication.
func (s *server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.tokenHash == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || bcrypt.CompareHashAndPassword([]byte(s.tokenHash), []byte(token)) != nil {
			writeJSON(w, 401, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) handleListMissions(w http.ResponseWriter, r *http.Request) {
	list, err := s.missions.List(r.Context(), chi.URLParam(r, "issuer"))
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, list)
}

func (s *server) handleAddMission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type string `json:"type"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	typ, err := hunter.ParseType(req.Type)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	m, err := s.missions.Add(r.Context(), chi.URLParam(r, "issuer"), typ, req.URL)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	writeJSON(w, 201, m)
}

func (s *server) handleRemoveMission(w http.ResponseWriter, r *http.Request) {
	issuer := chi.URLParam(r, "issuer")
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}
	if err := s.missions.Remove(r.Context(), issuer, index); err != nil {
		writeError(w, 404, err)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "removed"})
}

func (s *server) handleAddReplacer(w http.ResponseWriter, r *http.Request) {
	issuer := chi.URLParam(r, "issuer")
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}
	var rule hunter.ContentReplace
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeError(w, 400, err)
		return
	}
	m, err := s.missions.AppendReplacer(r.Context(), issuer, index, rule)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	writeJSON(w, 200, m)
}

// handleCheck runs one evaluation immediately, outside the scheduler.
// The outcome is dispatched to the notifier exactly like a scheduled run.
func (s *server) handleCheck(w http.ResponseWriter, r *http.Request) {
	issuer := chi.URLParam(r, "issuer")
	index, ok := parseIndex(w, r)
	if !ok {
		return
	}
	out := s.engine.Evaluate(r.Context(), issuer, index)
	hunter.Dispatch(r.Context(), s.notifier, s.logger, issuer, out)

	resp := struct {
		Status  hunter.Status   `json:"status"`
		Mission *hunter.Mission `json:"mission,omitempty"`
		Error   string          `json:"error,omitempty"`
	}{Status: out.Status, Mission: out.Mission}
	if out.Err != nil {
		resp.Error = out.Err.Error()
	}
	writeJSON(w, 200, resp)
}

func (s *server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	list, err := s.users.List(r.Context())
	if err != nil {
		writeError(w, 500, err)
		return
	}
	writeJSON(w, 200, list)
}

func (s *server) handleAddUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID    string `json:"id"`
		Admin bool   `json:"admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, err)
		return
	}
	if req.ID == "" {
		writeJSON(w, 400, map[string]string{"error": "id is required"})
		return
	}
	u, err := s.users.Add(r.Context(), req.ID, req.Admin)
	if err != nil {
		writeError(w, 400, err)
		return
	}
	writeJSON(w, 201, u)
}

func (s *server) handleRemoveUser(w http.ResponseWriter, r *http.Request) {
	if err := s.users.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, 400, err)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "removed"})
}

func parseIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeJSON(w, 400, map[string]string{"error": "invalid mission index"})
		return 0, false
	}
	return index, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
