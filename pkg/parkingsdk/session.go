package parkingsdk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Session makes bearer-authenticated calls. Admin-only methods fail with a
// permission_denied *APIError when the token has no admin claim.
type Session struct {
	client *SDKClient
	token  string
}

// NodeQuery filters ListNodes. UsedBy is honoured for admins only.
type NodeQuery struct {
	Status   string
	UsedByMe bool
	UsedBy   string
}

func (q NodeQuery) encode() string {
	v := url.Values{}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if q.UsedByMe {
		v.Set("used_by_me", "true")
	}
	if q.UsedBy != "" {
		v.Set("used_by", q.UsedBy)
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func nodePath(id string) string { return "/api/nodes/" + url.PathEscape(id) }
func userPath(id string) string { return "/api/users/" + url.PathEscape(id) }

func (s *Session) ListNodes(ctx context.Context, q NodeQuery) ([]NodeView, error) {
	resp, err := s.client.doRequest(ctx, http.MethodGet, "/api/nodes"+q.encode(), s.token, nil)
	if err != nil {
		return nil, err
	}

	var out ListNodesResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Nodes, nil
}

func (s *Session) GetNode(ctx context.Context, id string) (*NodeView, error) {
	resp, err := s.client.doRequest(ctx, http.MethodGet, nodePath(id), s.token, nil)
	if err != nil {
		return nil, err
	}

	var out NodeView
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reserve books node id for the session's user.
func (s *Session) Reserve(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, "reserved")
}

// CancelReservation releases a reservation the session's user holds on id.
func (s *Session) CancelReservation(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, "free")
}

func (s *Session) setStatus(ctx context.Context, id, status string) error {
	return s.UpdateNode(ctx, id, UpdateFields{Status: &status})
}

// UpdateNode sends a UI update. Fields other than Status need admin rights.
func (s *Session) UpdateNode(ctx context.Context, id string, fields UpdateFields) error {
	resp, err := s.client.doRequest(ctx, http.MethodPatch, nodePath(id), s.token, StatusUpdateRequest{
		Source: SourceUI,
		Data:   &fields,
	})
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}

// CreateNode registers a node. Admin only.
func (s *Session) CreateNode(ctx context.Context, req CreateNodeRequest) (*CreateNodeResponse, error) {
	resp, err := s.client.doRequest(ctx, http.MethodPost, "/api/nodes", s.token, req)
	if err != nil {
		return nil, err
	}

	var out CreateNodeResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteNode removes a node. Admin only.
func (s *Session) DeleteNode(ctx context.Context, id string) error {
	resp, err := s.client.doRequest(ctx, http.MethodDelete, nodePath(id), s.token, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}

// UserQuery filters ListUsers. Nil fields are not filtered on.
type UserQuery struct {
	IsAdmin           *bool
	IsParked          *bool
	ViolationDetected *bool
}

func (q UserQuery) encode() string {
	v := url.Values{}
	set := func(name string, b *bool) {
		if b != nil {
			v.Set(name, strconv.FormatBool(*b))
		}
	}
	set("is_admin", q.IsAdmin)
	set("is_parked", q.IsParked)
	set("violation_detected", q.ViolationDetected)
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func (s *Session) ListUsers(ctx context.Context, q UserQuery) ([]UserView, error) {
	resp, err := s.client.doRequest(ctx, http.MethodGet, "/api/users"+q.encode(), s.token, nil)
	if err != nil {
		return nil, err
	}

	var out ListUsersResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (s *Session) GetUser(ctx context.Context, id string) (*UserView, error) {
	resp, err := s.client.doRequest(ctx, http.MethodGet, userPath(id), s.token, nil)
	if err != nil {
		return nil, err
	}

	var out UserView
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Session) CreateUser(ctx context.Context, req CreateUserRequest) error {
	resp, err := s.client.doRequest(ctx, http.MethodPost, "/api/users", s.token, req)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusCreated)
}

func (s *Session) UpdateUser(ctx context.Context, id string, req UpdateUserRequest) error {
	resp, err := s.client.doRequest(ctx, http.MethodPatch, userPath(id), s.token, req)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}

// UnlockUser lifts a cloning lockout, installing the replacement badge secret.
func (s *Session) UnlockUser(ctx context.Context, id, newSecret string) error {
	resp, err := s.client.doRequest(ctx, http.MethodPost, userPath(id)+"/unlock", s.token,
		UnlockUserRequest{AuthSecret: newSecret})
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}

func (s *Session) DeleteUser(ctx context.Context, id string) error {
	resp, err := s.client.doRequest(ctx, http.MethodDelete, userPath(id), s.token, nil)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}
