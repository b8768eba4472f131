package http

import (
	"net/http"

	"github.com/aussiebroadwan/parking/internal/parking/service"
	"github.com/aussiebroadwan/parking/internal/parking/store"
	"github.com/aussiebroadwan/parking/pkg/httpx"
	"github.com/aussiebroadwan/parking/pkg/parkingsdk"
)

// UsersHandler serves account management. Every route is admin only.
type UsersHandler struct {
	Admin *service.AdminService
}

// HandleList handles GET /api/users.
//
// Query: is_admin, is_parked and violation_detected, each a boolean.
func (h *UsersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var (
		filter store.UserFilter
		err    error
	)
	if filter.IsAdmin, err = queryBool(r, "is_admin"); err != nil {
		writeBadRequest(w, "is_admin must be a boolean")
		return
	}
	if filter.IsParked, err = queryBool(r, "is_parked"); err != nil {
		writeBadRequest(w, "is_parked must be a boolean")
		return
	}
	if filter.Locked, err = queryBool(r, "violation_detected"); err != nil {
		writeBadRequest(w, "violation_detected must be a boolean")
		return
	}

	users, err := h.Admin.ListUsers(r.Context(), filter)
	if err != nil {
		writeResult(w, r, err, "")
		return
	}

	resp := parkingsdk.ListUsersResponse{Users: make([]parkingsdk.UserView, len(users))}
	for i, u := range users {
		resp.Users[i] = userView(u)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /api/users/{id}.
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.Admin.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeResult(w, r, err, "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userView(u))
}

// HandleCreate handles POST /api/users.
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req parkingsdk.CreateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON in request body")
		return
	}

	err := h.Admin.CreateUser(r.Context(), service.NewUser{
		ID:              req.ID,
		Username:        req.Username,
		Email:           req.Email,
		IsAdmin:         req.IsAdmin,
		BadgeExpiration: req.BadgeExpiration,
		AuthSecret:      req.AuthSecret,
	})
	if err != nil {
		writeResult(w, r, err, "")
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, parkingsdk.StatusResponse{
		Status:  string(service.ResultSuccess),
		Message: "user created",
	})
}

// HandleUpdate handles PATCH /api/users/{id}.
func (h *UsersHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req parkingsdk.UpdateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON in request body")
		return
	}

	err := h.Admin.UpdateUser(r.Context(), r.PathValue("id"), service.UserUpdate{
		Username:        req.Username,
		Email:           req.Email,
		IsAdmin:         req.IsAdmin,
		BadgeExpiration: req.BadgeExpiration,
	})
	writeResult(w, r, err, "user updated")
}

// HandleUnlock handles POST /api/users/{id}/unlock.
func (h *UsersHandler) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	var req parkingsdk.UnlockUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON in request body")
		return
	}

	err := h.Admin.UnlockUser(r.Context(), r.PathValue("id"), req.AuthSecret)
	writeResult(w, r, err, "account unlocked")
}

// HandleDelete handles DELETE /api/users/{id}.
func (h *UsersHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.Admin.DeleteUser(r.Context(), r.PathValue("id"))
	writeResult(w, r, err, "user deleted")
}
