package http

import (
	"net/http"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/service"
	"github.com/aussiebroadwan/parking/internal/parking/store"
	"github.com/aussiebroadwan/parking/pkg/httpx"
	"github.com/aussiebroadwan/parking/pkg/parkingsdk"
	"github.com/aussiebroadwan/parking/pkg/slogx"
)

// NodesHandler serves the node endpoints. Nodes talk to HandleAuthenticate
// and HandleUpdate with their own token, everything else is bearer-only.
type NodesHandler struct {
	Coordinator *service.AccessCoordinator
	Admin       *service.AdminService
}

// HandleAuthenticate handles POST /api/nodes/{id}, a badge scan.
func (h *NodesHandler) HandleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req service.NodeAuthRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON in request body")
		return
	}

	err := h.Coordinator.AuthenticateAtNode(r.Context(), r.PathValue("id"), req)
	writeResult(w, r, err, "access granted")
}

// HandleUpdate handles PATCH /api/nodes/{id}. The caller is taken from the
// bearer token when there is one; node sources authenticate in the body.
func (h *NodesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var upd service.StatusUpdate
	if err := httpx.DecodeJSON(r, &upd); err != nil {
		writeBadRequest(w, "invalid JSON in request body")
		return
	}

	var caller *service.Caller
	if claims, ok := httpx.ClaimsFromContext(r.Context()); ok {
		caller = &service.Caller{UID: claims.UID, IsAdmin: claims.IsAdmin}
	}

	err := h.Coordinator.UpdateStatus(r.Context(), r.PathValue("id"), caller, upd)
	writeResult(w, r, err, "node updated")
}

// HandleList handles GET /api/nodes.
//
// Query: status=<status>, used_by_me=true, and for admins used_by=<uid>.
func (h *NodesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, _ := httpx.ClaimsFromContext(ctx)

	q := r.URL.Query()
	filter := store.NodeFilter{Status: domain.NodeStatus(q.Get("status"))}
	if filter.Status != "" && !filter.Status.Valid() {
		writeBadRequest(w, "unknown status filter")
		return
	}

	mine, err := queryBool(r, "used_by_me")
	if err != nil {
		writeBadRequest(w, "used_by_me must be a boolean")
		return
	}
	switch {
	case mine != nil && *mine:
		filter.UsedBy = claims.UID
	case q.Get("used_by") != "" && claims.IsAdmin:
		filter.UsedBy = q.Get("used_by")
	case q.Get("used_by") != "":
		writeResult(w, r, service.ErrPermissionDenied, "")
		return
	}

	nodes, err := h.Admin.ListNodes(ctx, filter)
	if err != nil {
		writeResult(w, r, err, "")
		return
	}

	resp := parkingsdk.ListNodesResponse{Nodes: make([]parkingsdk.NodeView, len(nodes))}
	for i, n := range nodes {
		resp.Nodes[i] = nodeView(n, claims.UID, claims.IsAdmin)
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /api/nodes/{id}.
func (h *NodesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFromContext(r.Context())

	node, err := h.Admin.GetNode(r.Context(), r.PathValue("id"))
	if err != nil {
		writeResult(w, r, err, "")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, nodeView(node, claims.UID, claims.IsAdmin))
}

// HandleCreate handles POST /api/nodes. Admin only.
func (h *NodesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req parkingsdk.CreateNodeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON in request body")
		return
	}

	token, err := h.Admin.CreateNode(r.Context(), req.ID, req.Position, req.Token)
	if err != nil {
		writeResult(w, r, err, "")
		return
	}

	slogx.FromContext(r.Context()).Info("node registered", "node_id", req.ID)
	httpx.WriteJSON(w, http.StatusCreated, parkingsdk.CreateNodeResponse{ID: req.ID, Token: token})
}

// HandleDelete handles DELETE /api/nodes/{id}. Admin only.
func (h *NodesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.Admin.DeleteNode(r.Context(), r.PathValue("id"))
	writeResult(w, r, err, "node deleted")
}
