package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianlabs/davsync/pkg/log"
	"github.com/meridianlabs/davsync/pkg/metrics"
	"github.com/meridianlabs/davsync/pkg/service"
	"github.com/meridianlabs/davsync/pkg/types"
)

// Server is the HTTP front end for a Facade. See package doc for the route
// table.
type Server struct {
	facade *service.Facade
	mux    *http.ServeMux
	logger zerolog.Logger
}

// NewServer builds a Server wrapping facade. The returned Server is ready
// to be passed to http.Server as a Handler, or served directly via
// ListenAndServe.
func NewServer(facade *service.Facade) *Server {
	s := &Server{
		facade: facade,
		mux:    http.NewServeMux(),
		logger: log.WithComponent("api"),
	}

	s.mux.HandleFunc("GET /accounts", s.handleListAccounts)
	s.mux.HandleFunc("POST /accounts", s.handleAddAccount)
	s.mux.HandleFunc("DELETE /accounts/{id}", s.handleRemoveAccount)
	s.mux.HandleFunc("GET /accounts/{id}/resources", s.handleResources)
	s.mux.HandleFunc("POST /accounts/{id}/sync", s.handleSync)

	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/healthz", metrics.HealthHandler())
	s.mux.HandleFunc("/readyz", metrics.ReadyHandler())
	s.mux.HandleFunc("/livez", metrics.LivenessHandler())

	return s
}

// Handler returns the Server's http.Handler, for embedding into a caller's
// own http.Server or test httptest.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe runs the Server on addr until it returns an error.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return srv.ListenAndServe()
}

type accountResponse struct {
	ID        types.AccountID `json:"id"`
	BaseURL   string          `json:"baseUrl"`
	Username  string          `json:"username"`
	Label     string          `json:"label"`
	CreatedAt time.Time       `json:"createdAt"`
}

func toAccountResponse(a types.Account) accountResponse {
	return accountResponse{ID: a.ID, BaseURL: a.BaseURL, Username: a.Username, Label: a.Label, CreatedAt: a.CreatedAt}
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.facade.Accounts()
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]accountResponse, len(accounts))
	for i, a := range accounts {
		out[i] = toAccountResponse(a)
	}
	writeJSON(w, http.StatusOK, out)
}

type addAccountRequest struct {
	BaseURL  string `json:"baseUrl"`
	Username string `json:"username"`
	Label    string `json:"label"`
}

func (s *Server) handleAddAccount(w http.ResponseWriter, r *http.Request) {
	var req addAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewError(types.KindInvalidArgument, "malformed request body", err))
		return
	}
	if req.BaseURL == "" || req.Username == "" {
		writeError(w, types.NewError(types.KindInvalidArgument, "baseUrl and username are required", nil))
		return
	}

	account, err := s.facade.AddAccount(req.BaseURL, req.Username, req.Label)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (s *Server) handleRemoveAccount(w http.ResponseWriter, r *http.Request) {
	id := types.AccountID(r.PathValue("id"))
	if err := s.facade.RemoveAccount(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	id := types.AccountID(r.PathValue("id"))
	path := parsePathQuery(r.URL.Query().Get("path"))

	resource, err := s.facade.Resource(id, path)
	if err != nil {
		writeError(w, err)
		return
	}

	children, err := s.facade.Contents(id, path)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resource": resource,
		"children": children,
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	id := types.AccountID(r.PathValue("id"))
	path := parsePathQuery(r.URL.Query().Get("path"))

	cs, err := s.facade.UpdateResource(r.Context(), id, path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func parsePathQuery(raw string) types.Path {
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return types.Path{}
	}
	return types.Path(strings.Split(raw, "/"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errorStatus(err), map[string]string{"error": err.Error()})
}

func errorStatus(err error) int {
	switch {
	case types.IsKind(err, types.KindInvalidArgument):
		return http.StatusBadRequest
	case types.IsKind(err, types.KindAuthenticationRequired):
		return http.StatusUnauthorized
	case types.IsKind(err, types.KindCancelled):
		return http.StatusServiceUnavailable
	case types.IsKind(err, types.KindUnexpectedStatus):
		return http.StatusBadGateway
	case types.IsKind(err, types.KindNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
