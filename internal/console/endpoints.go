package console

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/janw/rtscope/internal/api"
	"github.com/janw/rtscope/internal/log"
)

func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]api.Endpoint)
	for _, role := range api.Roles() {
		out[role] = api.EndpointsFor(role)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCallEndpoint executes a registry endpoint against the configured
// backend, extracts its token field, and remembers the invocation.
func (s *Server) handleCallEndpoint(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	name := chi.URLParam(r, "name")

	ep, ok := api.Lookup(role, name)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("unknown endpoint"))
		return
	}

	var req struct {
		Params map[string]any `json:"params"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	baseURL, _ := s.store.Get(SettingAPIBaseURL)
	authToken, _ := s.store.Get(SettingAuthToken)
	client := api.NewClient(baseURL, authToken)

	resp, err := client.Do(r.Context(), ep, req.Params)
	if err != nil {
		status := http.StatusBadGateway
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			status = apiErr.Status
		}
		writeJSON(w, status, map[string]any{
			"error":   err.Error(),
			"message": api.Describe(err),
		})
		return
	}

	if err := s.store.SaveRequest(role, name, req.Params); err != nil {
		log.Warn("console: failed to save request history", "error", err.Error())
	}

	out := map[string]any{"response": resp}
	if tok := api.ExtractToken(resp, ep.TokenField); tok != nil {
		out["token"] = tok
		out["tokenField"] = ep.TokenField
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.History(chi.URLParam(r, "role"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	role := chi.URLParam(r, "role")
	if role == "all" {
		role = ""
	}
	if err := s.store.ClearHistory(role); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	baseURL, err := s.store.Get(SettingAPIBaseURL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	authToken, err := s.store.Get(SettingAuthToken)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if baseURL == "" {
		baseURL = api.DefaultBaseURL
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"apiBaseUrl":   baseURL,
		"authTokenSet": authToken != "",
	})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIBaseURL *string `json:"apiBaseUrl"`
		AuthToken  *string `json:"authToken"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.APIBaseURL != nil {
		if err := s.store.Set(SettingAPIBaseURL, *req.APIBaseURL); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	if req.AuthToken != nil {
		if err := s.store.Set(SettingAuthToken, *req.AuthToken); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	s.handleGetSettings(w, r)
}
