package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/inlock/fabric/pkg/types"
)

const (
	// DefaultReadTimeout bounds health probes and read requests.
	DefaultReadTimeout = 2 * time.Second

	// DefaultWriteTimeout bounds register and transfer requests.
	DefaultWriteTimeout = 5 * time.Second
)

// Client is a typed HTTP client for a single replica.
type Client struct {
	baseURL     string
	readClient  *http.Client
	writeClient *http.Client
}

// NewClient creates a client for the replica at baseURL
// (e.g. "http://localhost:5001").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:     baseURL,
		readClient:  &http.Client{Timeout: DefaultReadTimeout},
		writeClient: &http.Client{Timeout: DefaultWriteTimeout},
	}
}

// WithTimeouts overrides the read and write timeouts.
func (c *Client) WithTimeouts(read, write time.Duration) *Client {
	c.readClient.Timeout = read
	c.writeClient.Timeout = write
	return c
}

// BaseURL returns the replica address this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health probes GET /health.
func (c *Client) Health(ctx context.Context) (*types.HealthResponse, error) {
	var out types.HealthResponse
	if err := c.getJSON(ctx, "/health", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterAsset posts a register request. The returned response reports the
// replica's accept/reject decision; a non-nil error means the request never
// completed.
func (c *Client) RegisterAsset(ctx context.Context, assetID, userID string, assetData map[string]any) (*types.OpResponse, error) {
	req := types.RegisterRequest{AssetID: assetID, UserID: userID, AssetData: assetData}
	var out types.OpResponse
	if err := c.postJSON(ctx, "/register_asset", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransferAsset posts a transfer request.
func (c *Client) TransferAsset(ctx context.Context, assetID, fromUserID, toUserID string) (*types.OpResponse, error) {
	req := types.TransferRequest{AssetID: assetID, FromUserID: fromUserID, ToUserID: toUserID}
	var out types.OpResponse
	if err := c.postJSON(ctx, "/transfer_asset", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UserAssets fetches the asset ids owned by a user on this replica.
func (c *Client) UserAssets(ctx context.Context, userID string) ([]string, error) {
	var out types.UserAssetsResponse
	if err := c.getJSON(ctx, "/user_assets/"+url.PathEscape(userID), &out); err != nil {
		return nil, err
	}
	return out.Assets, nil
}

// VerifyOwnership reports whether this replica considers userID the current
// owner of assetID. Transport failures count as not-owner.
func (c *Client) VerifyOwnership(ctx context.Context, assetID, userID string) bool {
	path := "/verify_ownership?" + url.Values{
		"asset_id": {assetID},
		"user_id":  {userID},
	}.Encode()
	var out types.OwnershipResponse
	if err := c.getJSON(ctx, path, &out); err != nil {
		return false
	}
	return out.IsOwner
}

// AssetHistory fetches the linearized ownership history for an asset.
func (c *Client) AssetHistory(ctx context.Context, assetID string) ([]types.HistoryEntry, error) {
	var out types.HistoryResponse
	if err := c.getJSON(ctx, "/asset_history/"+url.PathEscape(assetID), &out); err != nil {
		return nil, err
	}
	return out.History, nil
}

// AssetData fetches the register event's data for an asset.
func (c *Client) AssetData(ctx context.Context, assetID string) (map[string]string, error) {
	var out types.AssetDataResponse
	if err := c.getJSON(ctx, "/asset_data/"+url.PathEscape(assetID), &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(c.readClient, req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(c.writeClient, req, out)
}

func (c *Client) do(hc *http.Client, req *http.Request, out any) error {
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: HTTP %d: %s", req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
