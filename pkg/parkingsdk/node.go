package parkingsdk

import (
	"context"
	"net/http"
	"net/url"
)

// NodeClient makes the calls a physical node makes, authenticated with the
// node's own token.
type NodeClient struct {
	client *SDKClient
	id     string
	token  string
}

func (n *NodeClient) path() string {
	return "/api/nodes/" + url.PathEscape(n.id)
}

// ScanBadge reports a badge read. A nil error means the driver may park.
func (n *NodeClient) ScanBadge(ctx context.Context, badge BadgeRead) error {
	resp, err := n.client.doRequest(ctx, http.MethodPost, n.path(), "", BadgeScanRequest{
		Token:    n.token,
		UserData: &badge,
	})
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}

// ReportStatus sends what the node's sensor currently sees. An empty status
// only refreshes the node's last-seen time.
func (n *NodeClient) ReportStatus(ctx context.Context, status string) error {
	fields := &UpdateFields{}
	if status != "" {
		fields.Status = &status
	}

	resp, err := n.client.doRequest(ctx, http.MethodPatch, n.path(), "", StatusUpdateRequest{
		Source: SourceNode,
		Token:  n.token,
		Data:   fields,
	})
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}
