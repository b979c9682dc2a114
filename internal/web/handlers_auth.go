package web

import (
	"encoding/json"
	"net/http"

	"trialdex/internal/core"
	"trialdex/internal/web/middleware"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string `json:"token,omitempty"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "request body is not valid JSON")
		return
	}
	if req.Email == "" || req.Password == "" {
		badRequest(w, "email and password are required")
		return
	}

	token, admin, err := s.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}

	s.service.RecordSignIn(r.Context(), core.Actor{ID: admin.ID, Email: admin.Email})

	writeJSON(w, http.StatusOK, sessionResponse{
		Token: token,
		Email: admin.Email,
		Role:  string(admin.Role),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.auth.SignOut(middleware.BearerToken(r))
	s.service.RecordSignOut(r.Context(), actorFrom(r))

	writeJSON(w, http.StatusOK, map[string]string{"status": "signed out"})
}

// handleSession reports who the bearer token belongs to, including the
// role resolved against the credential source. A circular role policy
// surfaces here as a misconfiguration error instead of a silent
// privilege downgrade.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFromContext(r.Context())

	role, err := s.auth.LookupRole(r.Context(), p.ID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Email: p.Email,
		Role:  string(role),
	})
}
