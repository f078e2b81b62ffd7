package http

import (
	"encoding/json"
	"net/http"

	"kharcha/internal/core"
)

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type registerResponse struct {
	User             userResponse `json:"user"`
	SeededCategories []string     `json:"seeded_categories"`
}

type loginResponse struct {
	User  userResponse `json:"user"`
	Token string       `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if err := payload.validate(); err != nil {
		badRequest(w, err.Error())
		return
	}

	user, seed, err := s.users.Register(r.Context(), sanitizeInput(payload.Username), payload.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{
		User:             userResponse{ID: user.ID, Username: user.Username},
		SeededCategories: seed.Created,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		badRequest(w, "invalid JSON body")
		return
	}
	if err := payload.validate(); err != nil {
		badRequest(w, err.Error())
		return
	}

	token, user, err := s.users.Login(r.Context(), sanitizeInput(payload.Username), payload.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		User:  userResponse{ID: user.ID, Username: user.Username},
		Token: token,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ core.User) {
	if err := s.users.Logout(r.Context(), sessionToken(r)); err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}
