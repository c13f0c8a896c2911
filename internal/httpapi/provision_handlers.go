package httpapi

import (
	"net/http"
	"time"

	"joinarr.org/internal/audit"
	"joinarr.org/internal/provision"
)

type joinResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type userResponse struct {
	ID       string     `json:"id"`
	Username string     `json:"username"`
	Email    string     `json:"email"`
	RemoteID string     `json:"remote_id"`
	Code     string     `json:"code"`
	Expires  *time.Time `json:"expires,omitempty"`
	Created  time.Time  `json:"created_at"`
}

type libraryResponse struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
}

func (a *API) handleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req provision.JoinRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ctx := audit.WithRequestID(r.Context(), requestIDFrom(r))
	ok, msg := a.svc.Join(ctx, req)
	_ = audit.LogEvent(ctx, "user.join", map[string]any{
		"username": req.Username, "code": req.Code, "ok": ok,
	})

	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, joinResponse{OK: false, Message: msg})
		return
	}
	writeJSON(w, http.StatusCreated, joinResponse{OK: true})
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	ctx := audit.WithRequestID(r.Context(), requestIDFrom(r))
	users, err := a.svc.Sync(ctx)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "directory sync failed")
		return
	}
	_ = audit.LogEvent(ctx, "user.sync", map[string]any{"local_users": len(users)})

	writeJSON(w, http.StatusOK, map[string]any{"users": toUserResponses(users)})
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	users, err := a.svc.Sync(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "directory sync failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": toUserResponses(users)})
}

func (a *API) handleLibraryScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	ctx := audit.WithRequestID(r.Context(), requestIDFrom(r))
	libs, err := a.svc.ScanLibraries(ctx)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "library scan failed")
		return
	}
	_ = audit.LogEvent(ctx, "library.scan", map[string]any{"libraries": len(libs)})

	out := make([]libraryResponse, 0, len(libs))
	for _, lib := range libs {
		out = append(out, libraryResponse{
			ID: lib.ID, ExternalID: lib.ExternalID, Name: lib.Name, Enabled: lib.Enabled,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"libraries": out})
}

func toUserResponses(users []*provision.User) []userResponse {
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse{
			ID:       u.ID,
			Username: u.Username,
			Email:    u.Email,
			RemoteID: u.RemoteID,
			Code:     u.Code,
			Expires:  u.Expires,
			Created:  u.CreatedAt,
		})
	}
	return out
}
