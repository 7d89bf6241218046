// Package model holds the gateway's core domain types — Session, Meta, and
// the normalized on-chain asset fields — shared across the session,
// upload, and read-proxy packages.
package model

import "time"

// Status is the Session/Meta lifecycle state, per spec §3.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusFinalizing Status = "finalizing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
	StatusExpired    Status = "expired"
)

// Session is the control-plane record tracking one in-progress ingestion.
type Session struct {
	UploadID    string
	Filename    string
	ContentType string
	SizeBytes   int64
	ChunkSize   int64
	TotalChunks int
	Epochs      int
	Status      Status
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// LastChunkSize returns the expected size of the final chunk, which may be
// smaller than ChunkSize when SizeBytes isn't an exact multiple of it.
func (s *Session) LastChunkSize() int64 {
	rem := s.SizeBytes - s.ChunkSize*int64(s.TotalChunks-1)
	if rem <= 0 {
		return s.ChunkSize
	}
	return rem
}

// ExpectedChunkSize returns the expected byte size for chunk index i.
func (s *Session) ExpectedChunkSize(index int) int64 {
	if index == s.TotalChunks-1 {
		return s.LastChunkSize()
	}
	return s.ChunkSize
}

// Meta is the durable sibling of Session that outlives it, carrying the
// lifecycle timestamps and, on success, the commit triple.
type Meta struct {
	Status               Status
	CreatedAt            time.Time
	FinalizingAt         *time.Time
	CompletedAt          *time.Time
	FailedAt             *time.Time
	CanceledAt           *time.Time
	ExpiredAt            *time.Time
	RecoveredAt          *time.Time
	WalrusUploadedAt     *time.Time
	MetadataFinalizedAt  *time.Time
	FileID               string
	BlobID               string
	SizeBytes            int64
	Error                string
}

// AssetFields is the normalized on-chain asset record the read proxy
// resolves per fileId, either from cache or freshly fetched from the
// registry.
type AssetFields struct {
	BlobID    string    `json:"blob_id"`
	SizeBytes int64     `json:"size_bytes"`
	Mime      string    `json:"mime"`
	CreatedAt time.Time `json:"created_at"`
	Owner     string    `json:"owner,omitempty"`
}
