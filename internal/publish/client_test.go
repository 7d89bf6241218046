package publish

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/floegw/floe/internal/logger"
)

func testSignerSeed() ed25519.PrivateKey {
	_, priv, _ := ed25519.GenerateKey(nil)
	return priv
}

func TestLoadSignerKey_Hex(t *testing.T) {
	priv := testSignerSeed()
	hexKey := hex.EncodeToString(priv)
	key, err := LoadSignerKey(hexKey)
	if err != nil {
		t.Fatalf("LoadSignerKey: %v", err)
	}
	if !key.Equal(priv) {
		t.Fatalf("decoded key does not match original")
	}
}

func TestLoadSignerKey_Base64Standard(t *testing.T) {
	priv := testSignerSeed()
	b64Key := base64.StdEncoding.EncodeToString(priv)
	key, err := LoadSignerKey(b64Key)
	if err != nil {
		t.Fatalf("LoadSignerKey: %v", err)
	}
	if !key.Equal(priv) {
		t.Fatalf("decoded key does not match original")
	}
}

func TestLoadSignerKey_SeedOnlyExpandsToFullKey(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	key, err := LoadSignerKey(hex.EncodeToString(seed))
	if err != nil {
		t.Fatalf("LoadSignerKey: %v", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		t.Fatalf("expected a full private key, got %d bytes", len(key))
	}
}

func TestLoadSignerKey_EnvVarIndirection(t *testing.T) {
	priv := testSignerSeed()
	t.Setenv("FLOE_TEST_SIGNER", hex.EncodeToString(priv))
	key, err := LoadSignerKey("FLOE_TEST_SIGNER")
	if err != nil {
		t.Fatalf("LoadSignerKey: %v", err)
	}
	if !key.Equal(priv) {
		t.Fatalf("decoded key does not match original")
	}
}

func TestLoadSignerKey_EmptyRejected(t *testing.T) {
	if _, err := LoadSignerKey(""); err == nil {
		t.Fatalf("expected an error for an empty secret")
	}
}

func TestLoadSignerKey_GarbageRejected(t *testing.T) {
	if _, err := LoadSignerKey("not a key at all!!"); err == nil {
		t.Fatalf("expected an error for undecodable input")
	}
}

func newTestClient(t *testing.T, publisherURL string, minBalance uint64) *Client {
	t.Helper()
	priv := testSignerSeed()
	return &Client{
		publisherURL:    strings.TrimRight(publisherURL, "/"),
		http:            &http.Client{Timeout: 5 * time.Second},
		signer:          priv,
		log:             logger.New(),
		balanceCacheTTL: time.Minute,
		minBalance:      minBalance,
	}
}

func TestUpload_SuccessExtractsBlobID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		if r.Header.Get("X-Floe-Signature") == "" || r.Header.Get("X-Floe-Signer") == "" {
			t.Errorf("expected signed headers to be present")
		}
		io.Copy(io.Discard, r.Body)
		json.NewEncoder(w).Encode(map[string]string{"blobId": "blob-123"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	blobID, err := c.Upload(context.Background(), strings.NewReader("payload"), 7, 5)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if blobID != "blob-123" {
		t.Fatalf("got %q, want blob-123", blobID)
	}
}

func TestUpload_NonSuccessStatusSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("publisher overloaded"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	_, err := c.Upload(context.Background(), strings.NewReader("payload"), 7, 5)
	if err == nil {
		t.Fatalf("expected an error for a 500 response")
	}
}

func TestUpload_BalanceTooLowShortCircuits(t *testing.T) {
	uploadCalled := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/v1/balance"):
			json.NewEncoder(w).Encode(map[string]uint64{"balance": 10})
		case strings.HasPrefix(r.URL.Path, "/v1/blobs"):
			uploadCalled = true
			json.NewEncoder(w).Encode(map[string]string{"blobId": "blob-should-not-happen"})
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 1_000_000)
	_, err := c.Upload(context.Background(), strings.NewReader("payload"), 7, 5)
	if !errors.Is(err, ErrBalanceTooLow) {
		t.Fatalf("expected ErrBalanceTooLow, got %v", err)
	}
	if uploadCalled {
		t.Fatalf("expected the balance precheck to prevent the upload call")
	}
}

func TestCheckBalance_CachesWithinTTL(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]uint64{"balance": 42})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 0)
	c.balanceCacheTTL = time.Hour

	b1, err := c.CheckBalance(context.Background())
	if err != nil {
		t.Fatalf("CheckBalance: %v", err)
	}
	b2, err := c.CheckBalance(context.Background())
	if err != nil {
		t.Fatalf("CheckBalance: %v", err)
	}
	if b1 != 42 || b2 != 42 {
		t.Fatalf("got %d, %d, want 42, 42", b1, b2)
	}
	if calls != 1 {
		t.Fatalf("expected the second call to be served from cache, saw %d network calls", calls)
	}
}
