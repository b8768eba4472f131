/*
Package parkingsdk is a Go client for the parking platform API.

# SDKClient, NodeClient and Session

  - SDKClient: unauthenticated endpoints (health) and the entry point for the
    other two
  - NodeClient: what a physical node does, authenticated with its own token
  - Session: bearer-token calls made on behalf of a user or an admin

Typical use:

	client := parkingsdk.NewSDKClient("http://localhost:8080")

	node := client.Node("node-1", nodeToken)
	err := node.ScanBadge(ctx, parkingsdk.BadgeRead{UID: uid, AuthBytes: old, NewAuthBytes: next})

	session := client.WithBearer(jwt)
	err = session.Reserve(ctx, "node-1")

# Errors

Every non-2xx answer is returned as *APIError carrying the HTTP status and
the result tag from the body:

	var apiErr *parkingsdk.APIError
	if errors.As(err, &apiErr) && apiErr.Status == parkingsdk.StatusSpotTaken {
		// someone else got there first
	}
*/
package parkingsdk
