package parkingsdk

import (
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to one parking service instance.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Node returns a client acting as node id.
func (c *SDKClient) Node(id, token string) *NodeClient {
	return &NodeClient{client: c, id: id, token: token}
}

// WithBearer returns a session authenticated with an already issued token.
func (c *SDKClient) WithBearer(token string) *Session {
	return &Session{client: c, token: token}
}
