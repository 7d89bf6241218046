package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/floegw/floe/internal/readproxy"
)

func (s *Server) handleMetadata(c *gin.Context) {
	fileID := c.Param("fileId")
	fields, err := s.resolver.GetFileFields(c.Request.Context(), fileID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	resp := gin.H{
		"fileId":          fileID,
		"manifestVersion": 1,
		"container":       "walrus_single_blob",
		"sizeBytes":       fields.SizeBytes,
		"mimeType":        fields.Mime,
		"owner":           fields.Owner,
		"createdAt":       fields.CreatedAt,
	}
	if s.exposeBlobID(c) {
		resp["blobId"] = fields.BlobID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleManifest(c *gin.Context) {
	fileID := c.Param("fileId")
	fields, err := s.resolver.GetFileFields(c.Request.Context(), fileID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	segment := gin.H{"index": 0, "offsetBytes": 0, "sizeBytes": fields.SizeBytes}
	if s.exposeBlobID(c) {
		segment["blobId"] = fields.BlobID
	}

	resp := gin.H{
		"fileId":          fileID,
		"manifestVersion": 1,
		"container":       "walrus_single_blob",
		"sizeBytes":       fields.SizeBytes,
		"mimeType":        fields.Mime,
		"owner":           fields.Owner,
		"createdAt":       fields.CreatedAt,
		"layout": gin.H{
			"type":     "walrus_single_blob",
			"segments": []gin.H{segment},
		},
	}
	if s.exposeBlobID(c) {
		resp["blobId"] = fields.BlobID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStream(c *gin.Context) {
	fileID := c.Param("fileId")
	fields, err := s.resolver.GetFileFields(c.Request.Context(), fileID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	rng, err := readproxy.ParseRange(c.GetHeader("Range"), fields.SizeBytes)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.Header("Accept-Ranges", "bytes")
	c.Header("ETag", fields.BlobID)
	c.Header("Content-Type", fields.Mime)

	start, end := int64(0), fields.SizeBytes-1
	status := http.StatusOK
	if rng != nil {
		start, end = rng.Start, rng.End
		status = http.StatusPartialContent
		c.Header("Content-Range", readproxy.ContentRangeHeader(*rng, fields.SizeBytes))
	}
	c.Header("Content-Length", strconv.FormatInt(end-start+1, 10))
	c.Status(status)

	if c.Request.Method == http.MethodHead {
		return
	}

	// Layered over the request context, which net/http already cancels on
	// client disconnect, so both the read deadline and an abort fire the
	// same signal into the stitcher's upstream fetches and retry sleeps.
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.StreamReadTimeout)
	defer cancel()

	if err := s.stitcher.Stream(ctx, fields.BlobID, start, end, fields.SizeBytes, c.Writer); err != nil {
		s.log.Error(fmt.Sprintf("stream error for %s", fileID), err)
	}
}
