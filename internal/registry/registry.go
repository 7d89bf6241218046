// Package registry defines the narrow interface the gateway uses to talk
// to the on-chain metadata registry and its companion HTTP client, mirroring
// the way the teacher's replicate package isolates external storage
// backends behind a small interface rather than letting callers reach into
// SDK-specific types.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/floegw/floe/internal/model"
)

// Registry is the external collaborator that mints and resolves on-chain
// asset records. The gateway depends only on this interface so the
// finalization engine and read proxy never need to know about signing,
// gas, or chain RPC details.
type Registry interface {
	// Mint records a new asset pointing at blobID and returns the
	// registry-assigned fileID. Must be safe to retry: minting twice for
	// the same uploadID should be idempotent from the caller's
	// perspective (the committed fileID is cached before Mint is retried).
	Mint(ctx context.Context, uploadID, blobID string, sizeBytes int64, mime string, epochs int) (fileID string, err error)

	// Resolve fetches the normalized asset fields for fileID, used by the
	// read proxy when the fields aren't cached.
	Resolve(ctx context.Context, fileID string) (*model.AssetFields, error)
}

// HTTPClient implements Registry against a JSON HTTP registry service,
// grounded on the same http.Client-with-timeout-and-headers shape the
// teacher's replication package uses for its node health probes.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type mintRequest struct {
	UploadID  string `json:"uploadId"`
	BlobID    string `json:"blobId"`
	SizeBytes int64  `json:"sizeBytes"`
	Mime      string `json:"mime"`
	Epochs    int    `json:"epochs"`
}

type mintResponse struct {
	FileID string `json:"fileId"`
}

func (c *HTTPClient) Mint(ctx context.Context, uploadID, blobID string, sizeBytes int64, mime string, epochs int) (string, error) {
	body, err := json.Marshal(mintRequest{UploadID: uploadID, BlobID: blobID, SizeBytes: sizeBytes, Mime: mime, Epochs: epochs})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/assets", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("registry: mint request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("registry: mint status %d: %s", resp.StatusCode, data)
	}

	var out mintResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("registry: decode mint response: %w", err)
	}
	return out.FileID, nil
}

func (c *HTTPClient) Resolve(ctx context.Context, fileID string) (*model.AssetFields, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/assets/"+fileID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry: resolve request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("registry: resolve status %d: %s", resp.StatusCode, data)
	}

	var fields model.AssetFields
	if err := json.NewDecoder(resp.Body).Decode(&fields); err != nil {
		return nil, fmt.Errorf("registry: decode asset fields: %w", err)
	}
	return &fields, nil
}

// ErrNotFound indicates the registry has no record for the requested fileID.
var ErrNotFound = fmt.Errorf("registry: asset not found")
