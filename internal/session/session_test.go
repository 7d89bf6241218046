package session

import (
	"testing"
	"time"

	"github.com/floegw/floe/internal/model"
)

func TestParseSession_RoundTrips(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	fields := map[string]string{
		"filename":    "movie.mp4",
		"contentType": "video/mp4",
		"sizeBytes":   "12345",
		"chunkSize":   "1000",
		"totalChunks": "13",
		"epochs":      "5",
		"status":      string(model.StatusUploading),
		"createdAt":   now.Format(time.RFC3339),
	}

	sess, err := parseSession("upload-1", fields)
	if err != nil {
		t.Fatalf("parseSession: %v", err)
	}
	if sess.SizeBytes != 12345 || sess.ChunkSize != 1000 || sess.TotalChunks != 13 || sess.Epochs != 5 {
		t.Fatalf("got %+v", sess)
	}
	if !sess.CreatedAt.Equal(now) {
		t.Fatalf("createdAt mismatch: got %v, want %v", sess.CreatedAt, now)
	}
}

func TestParseSession_CorruptNumericFieldErrors(t *testing.T) {
	fields := map[string]string{
		"sizeBytes":   "not-a-number",
		"chunkSize":   "1000",
		"totalChunks": "1",
		"epochs":      "1",
		"createdAt":   time.Now().Format(time.RFC3339),
	}
	if _, err := parseSession("upload-2", fields); err == nil {
		t.Fatalf("expected a parse error for corrupt sizeBytes")
	}
}

func TestParseMeta_OptionalTimestampsOmittedWhenAbsent(t *testing.T) {
	fields := map[string]string{
		"status": string(model.StatusUploading),
	}
	meta, err := parseMeta(fields)
	if err != nil {
		t.Fatalf("parseMeta: %v", err)
	}
	if meta.CompletedAt != nil || meta.FailedAt != nil || meta.CanceledAt != nil {
		t.Fatalf("expected all optional timestamps nil, got %+v", meta)
	}
}

func TestParseMeta_CompletedCarriesCommitTriple(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second).Format(time.RFC3339)
	fields := map[string]string{
		"status":      string(model.StatusCompleted),
		"fileId":      "file-abc",
		"blobId":      "blob-xyz",
		"sizeBytes":   "999",
		"completedAt": now,
	}
	meta, err := parseMeta(fields)
	if err != nil {
		t.Fatalf("parseMeta: %v", err)
	}
	if meta.FileID != "file-abc" || meta.BlobID != "blob-xyz" || meta.SizeBytes != 999 {
		t.Fatalf("got %+v", meta)
	}
	if meta.CompletedAt == nil {
		t.Fatalf("expected CompletedAt to be set")
	}
}

func TestMetaFieldsForStatus_StampsMatchingField(t *testing.T) {
	now := time.Now()
	cases := []struct {
		status model.Status
		field  string
	}{
		{model.StatusFinalizing, "finalizingAt"},
		{model.StatusCompleted, "completedAt"},
		{model.StatusFailed, "failedAt"},
		{model.StatusCanceled, "canceledAt"},
		{model.StatusExpired, "expiredAt"},
	}
	for _, c := range cases {
		fields := MetaFieldsForStatus(c.status, now)
		if fields["status"] != string(c.status) {
			t.Fatalf("status %s: got status field %q", c.status, fields["status"])
		}
		if _, ok := fields[c.field]; !ok {
			t.Fatalf("status %s: expected field %q to be stamped, got %v", c.status, c.field, fields)
		}
	}
}

func TestMetaFieldsForStatus_UploadingStampsNoTerminalField(t *testing.T) {
	fields := MetaFieldsForStatus(model.StatusUploading, time.Now())
	if len(fields) != 1 {
		t.Fatalf("expected only the status field, got %v", fields)
	}
}
