package api

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/floegw/floe/internal/apierr"
	"github.com/floegw/floe/internal/model"
)

type createUploadRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
	SizeBytes   int64  `json:"sizeBytes" binding:"required"`
	ChunkSize   int64  `json:"chunkSize"`
	Epochs      int    `json:"epochs"`
}

func (s *Server) handleCreateUpload(c *gin.Context) {
	var req createUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apierr.Wrap(apierr.CodeInvalidRequestBody, 400, false, "malformed request body", err))
		return
	}

	if len(req.Filename) == 0 || len(req.Filename) > 512 {
		s.respondError(c, apierr.New(apierr.CodeInvalidFilename, 400, false, "filename must be 1-512 characters"))
		return
	}
	if len(req.ContentType) == 0 || len(req.ContentType) > 128 {
		s.respondError(c, apierr.New(apierr.CodeInvalidContentType, 400, false, "contentType must be 1-128 characters"))
		return
	}
	if req.SizeBytes <= 0 {
		s.respondError(c, apierr.New(apierr.CodeInvalidFileSize, 400, false, "sizeBytes must be positive"))
		return
	}
	if req.SizeBytes > s.cfg.MaxFileSize {
		s.respondError(c, apierr.New(apierr.CodeFileTooLarge, 400, false, "file exceeds maximum allowed size"))
		return
	}

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = s.cfg.MaxChunkBytes
		if req.SizeBytes < chunkSize {
			chunkSize = req.SizeBytes
		}
	}
	if chunkSize < s.cfg.MinChunkBytes {
		chunkSize = s.cfg.MinChunkBytes
	}
	if chunkSize > s.cfg.MaxChunkBytes {
		chunkSize = s.cfg.MaxChunkBytes
	}

	epochs := req.Epochs
	if epochs <= 0 {
		epochs = s.cfg.DefaultEpochs
	}
	if epochs < s.cfg.MinEpochs {
		epochs = s.cfg.MinEpochs
	}
	if epochs > s.cfg.MaxEpochs {
		epochs = s.cfg.MaxEpochs
	}

	totalChunks := int((req.SizeBytes + chunkSize - 1) / chunkSize)
	if totalChunks > s.cfg.MaxTotalChunks {
		s.respondError(c, apierr.New(apierr.CodeTooManyChunks, 400, false, "file would require too many chunks"))
		return
	}

	active, err := s.kv.GCIndexCard(c.Request.Context())
	if err != nil {
		s.respondError(c, apierr.Wrap(apierr.CodeInternalError, 500, true, "failed to check upload capacity", err))
		return
	}
	if int(active) >= s.cfg.MaxActiveUploads {
		s.respondError(c, apierr.New(apierr.CodeUploadCapacityReached, 429, true, "maximum concurrent uploads reached"))
		return
	}

	now := time.Now().UTC()
	sess := &model.Session{
		UploadID:    uuid.NewString(),
		Filename:    req.Filename,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		ChunkSize:   chunkSize,
		TotalChunks: totalChunks,
		Epochs:      epochs,
		Status:      model.StatusUploading,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.SessionTTL),
	}

	if err := s.sessions.Create(c.Request.Context(), sess); err != nil {
		s.respondError(c, err)
		return
	}
	s.log.Info("created upload %s: %s (%d chunks)", sess.UploadID, humanize.Bytes(uint64(sess.SizeBytes)), sess.TotalChunks)

	c.JSON(http.StatusCreated, gin.H{
		"uploadId":    sess.UploadID,
		"chunkSize":   sess.ChunkSize,
		"totalChunks": sess.TotalChunks,
		"epochs":      sess.Epochs,
		"expiresAt":   sess.ExpiresAt,
	})
}

func parseUploadID(c *gin.Context) (string, error) {
	id := c.Param("uploadId")
	if _, err := uuid.Parse(id); err != nil {
		return "", apierr.New(apierr.CodeInvalidUploadID, 400, false, "uploadId must be a valid UUID")
	}
	return id, nil
}

func (s *Server) handleUploadChunk(c *gin.Context) {
	uploadID, err := parseUploadID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		s.respondError(c, apierr.New(apierr.CodeInvalidChunk, 400, false, "index must be a non-negative integer"))
		return
	}
	expectedHash := c.GetHeader("x-chunk-sha256")
	if raw, err := hex.DecodeString(expectedHash); err != nil || len(raw) != 32 {
		s.respondError(c, apierr.New(apierr.CodeInvalidChunk, 400, false, "x-chunk-sha256 header must be 64 lowercase hex characters"))
		return
	}

	part, err := c.Request.MultipartReader()
	if err != nil {
		s.respondError(c, apierr.Wrap(apierr.CodeChunkStreamError, 400, false, "expected multipart body with a single file part", err))
		return
	}
	file, err := part.NextPart()
	if err != nil {
		s.respondError(c, apierr.Wrap(apierr.CodeChunkStreamError, 400, false, "missing file part", err))
		return
	}
	defer file.Close()

	if err := s.chunkHandler.UploadChunk(c.Request.Context(), uploadID, index, expectedHash, file); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "chunkIndex": index})
}

func (s *Server) handleStatus(c *gin.Context) {
	uploadID, err := parseUploadID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	report, err := s.chunkHandler.Status(c.Request.Context(), uploadID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	resp := gin.H{
		"uploadId":       report.UploadID,
		"chunkSize":      report.ChunkSize,
		"totalChunks":    report.TotalChunks,
		"receivedChunks": report.ReceivedChunks,
		"status":         report.Status,
	}
	if report.FileID != "" {
		resp["fileId"] = report.FileID
	}
	if report.BlobID != "" && s.exposeBlobID(c) {
		resp["blobId"] = report.BlobID
	}
	if report.Error != "" {
		resp["error"] = report.Error
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleComplete(c *gin.Context) {
	uploadID, err := parseUploadID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	result, err := s.finalizer.Complete(c.Request.Context(), uploadID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	resp := gin.H{
		"fileId":    result.FileID,
		"sizeBytes": result.SizeBytes,
		"status":    "ready",
	}
	if s.exposeBlobID(c) {
		resp["blobId"] = result.BlobID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCancel(c *gin.Context) {
	uploadID, err := parseUploadID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.finalizer.Cancel(c.Request.Context(), uploadID); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "uploadId": uploadID, "status": "canceled"})
}

// exposeBlobID reports whether this response may include the raw blobId,
// gated by config or an explicit opt-in query param.
func (s *Server) exposeBlobID(c *gin.Context) bool {
	if s.cfg.ExposeBlobID {
		return true
	}
	v := c.Query("includeBlobId")
	return v == "1" || v == "true"
}

func (s *Server) handleWatch(c *gin.Context) {
	uploadID, err := parseUploadID(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if err := s.hub.Serve(c.Writer, c.Request, uploadID); err != nil {
		s.respondError(c, apierr.Wrap(apierr.CodeInternalError, 500, true, fmt.Sprintf("watch upgrade failed for %s", uploadID), err))
	}
}
