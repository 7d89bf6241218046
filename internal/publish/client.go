// Package publish talks to the decentralized object store's publisher
// endpoint and coordinates bounded-concurrency, rate-limited publish
// attempts across many in-flight uploads, grounded on the teacher's
// replicate.ReplicationService for the health-tracked-failover shape and
// its UnifiedReplicator for the per-tenant caching pattern — here applied
// to a single publisher rather than many storage backends.
package publish

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/floegw/floe/internal/logger"
)

// ErrBalanceTooLow is returned by the precheck when the signer's balance is
// below the configured minimum threshold and publishing would predictably
// fail on-chain.
var ErrBalanceTooLow = errors.New("publish: signer balance below minimum threshold")

// Client uploads one assembled object to the publisher and reports its
// blobId, with a cached balance precheck so repeated low-balance attempts
// fail fast without hitting the network each time.
type Client struct {
	publisherURL string
	aggregators  []string
	http         *http.Client
	signer       ed25519.PrivateKey
	log          *logger.Logger

	balanceMu        sync.Mutex
	lastBalance      uint64
	lastBalanceCheck time.Time
	balanceCacheTTL  time.Duration
	minBalance       uint64
}

type Config struct {
	PublisherURL    string
	AggregatorURLs  []string
	SignerSecret    string // env var name or literal key material, per LoadSignerKey precedence
	Timeout         time.Duration
	BalanceCacheTTL time.Duration
	MinBalance      uint64
}

func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	key, err := LoadSignerKey(cfg.SignerSecret)
	if err != nil {
		return nil, fmt.Errorf("publish: load signer key: %w", err)
	}
	return &Client{
		publisherURL:    strings.TrimRight(cfg.PublisherURL, "/"),
		aggregators:     cfg.AggregatorURLs,
		http:            &http.Client{Timeout: cfg.Timeout},
		signer:          key,
		log:             log,
		balanceCacheTTL: cfg.BalanceCacheTTL,
		minBalance:      cfg.MinBalance,
	}, nil
}

// LoadSignerKey resolves a signer's ed25519 private key from a secret
// reference, trying decodings in order: raw hex, base64 standard, base64
// URL-safe, unpadded base64 standard, and finally treating the value as an
// environment variable name holding one of the above. The first encoding that produces a 32-byte or
// 64-byte key wins, the same defensive multi-encoding precedence the
// teacher's config package applies when reading ambiguous env input.
func LoadSignerKey(secret string) (ed25519.PrivateKey, error) {
	if secret == "" {
		return nil, errors.New("empty signer secret")
	}

	candidates := []string{secret}
	if v := os.Getenv(secret); v != "" {
		candidates = append(candidates, v)
	}

	for _, c := range candidates {
		if key, err := decodeSignerKey(c); err == nil {
			return key, nil
		}
	}
	return nil, fmt.Errorf("could not decode signer key from any supported encoding")
}

func decodeSignerKey(s string) (ed25519.PrivateKey, error) {
	s = strings.TrimSpace(s)
	if raw, err := hex.DecodeString(s); err == nil {
		if key, ok := toSigner(raw); ok {
			return key, nil
		}
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		if key, ok := toSigner(raw); ok {
			return key, nil
		}
	}
	if raw, err := base64.URLEncoding.DecodeString(s); err == nil {
		if key, ok := toSigner(raw); ok {
			return key, nil
		}
	}
	if raw, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		if key, ok := toSigner(raw); ok {
			return key, nil
		}
	}
	return nil, errors.New("unrecognized signer key encoding")
}

func toSigner(raw []byte) (ed25519.PrivateKey, bool) {
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), true
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), true
	default:
		return nil, false
	}
}

// CheckBalance returns the signer's current balance, using a cached value
// when younger than balanceCacheTTL to avoid a chain query on every
// publish attempt.
func (c *Client) CheckBalance(ctx context.Context) (uint64, error) {
	c.balanceMu.Lock()
	if time.Since(c.lastBalanceCheck) < c.balanceCacheTTL {
		bal := c.lastBalance
		c.balanceMu.Unlock()
		return bal, nil
	}
	c.balanceMu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.publisherURL+"/v1/balance?address="+c.address(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("publish: balance check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return 0, fmt.Errorf("publish: balance check status %d", resp.StatusCode)
	}

	var out struct {
		Balance uint64 `json:"balance"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}

	c.balanceMu.Lock()
	c.lastBalance = out.Balance
	c.lastBalanceCheck = time.Now()
	c.balanceMu.Unlock()
	return out.Balance, nil
}

func (c *Client) address() string {
	pub := c.signer.Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub)
}

// Upload sends the assembled object to the publisher in a single shot,
// signs the request with a timestamp header to prevent replay, and
// extracts the blobId from the response. The context should carry a
// deadline (five minutes per the coordinator's default).
func (c *Client) Upload(ctx context.Context, body io.Reader, sizeBytes int64, epochs int) (blobID string, err error) {
	if c.minBalance > 0 {
		bal, err := c.CheckBalance(ctx)
		if err != nil {
			return "", fmt.Errorf("publish: balance precheck: %w", err)
		}
		if bal < c.minBalance {
			return "", ErrBalanceTooLow
		}
	}

	url := fmt.Sprintf("%s/v1/blobs?epochs=%d", c.publisherURL, epochs)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return "", err
	}
	req.ContentLength = sizeBytes

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := ed25519.Sign(c.signer, []byte(ts))
	req.Header.Set("X-Floe-Timestamp", ts)
	req.Header.Set("X-Floe-Signature", hex.EncodeToString(sig))
	req.Header.Set("X-Floe-Signer", c.address())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("publish: upload request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("publish: upload status %d: %s", resp.StatusCode, data)
	}

	var out struct {
		BlobID string `json:"blobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("publish: decode upload response: %w", err)
	}
	if out.BlobID == "" {
		return "", errors.New("publish: response missing blobId")
	}
	return out.BlobID, nil
}

// Aggregators returns the configured pool of read-path aggregator base
// URLs, for the read proxy to fail over across.
func (c *Client) Aggregators() []string {
	return c.aggregators
}
