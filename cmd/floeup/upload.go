package main

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a file",
	Long:  "Sniff a file's content type, open a chunked upload session, stream every chunk, and finalize.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runUpload(args[0]); err != nil {
			die(err)
		}
	},
}

type createUploadResponse struct {
	UploadID    string    `json:"uploadId"`
	ChunkSize   int64     `json:"chunkSize"`
	TotalChunks int       `json:"totalChunks"`
	Epochs      int       `json:"epochs"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type completeResponse struct {
	FileID    string `json:"fileId"`
	SizeBytes int64  `json:"sizeBytes"`
	Status    string `json:"status"`
	BlobID    string `json:"blobId,omitempty"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func runUpload(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}

	mtype, err := mimetype.DetectFile(path)
	contentType := "application/octet-stream"
	if err == nil {
		contentType = mtype.String()
	}

	client := &http.Client{Timeout: 30 * time.Second}

	created, err := createUpload(client, filenameOf(path), contentType, info.Size(), chunkOverride, epochs)
	if err != nil {
		return fmt.Errorf("creating upload: %w", err)
	}
	fmt.Printf("upload %s: %s in %d chunks of %s\n", created.UploadID, humanize.Bytes(uint64(info.Size())), created.TotalChunks, humanize.Bytes(uint64(created.ChunkSize)))

	for index := 0; index < created.TotalChunks; index++ {
		if err := uploadChunk(client, f, created.UploadID, index, created.ChunkSize, info.Size()); err != nil {
			return fmt.Errorf("uploading chunk %d: %w", index, err)
		}
		fmt.Printf("\rchunk %d/%d", index+1, created.TotalChunks)
	}
	fmt.Println()

	result, err := completeUpload(client, created.UploadID)
	if err != nil {
		return fmt.Errorf("finalizing upload: %w", err)
	}

	fmt.Printf("done: fileId=%s size=%s", result.FileID, humanize.Bytes(uint64(result.SizeBytes)))
	if result.BlobID != "" {
		fmt.Printf(" blobId=%s", result.BlobID)
	}
	fmt.Println()
	return nil
}

func filenameOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}

func createUpload(client *http.Client, filename, contentType string, sizeBytes, chunkSize int64, epochs int) (*createUploadResponse, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"filename":    filename,
		"contentType": contentType,
		"sizeBytes":   sizeBytes,
		"chunkSize":   chunkSize,
		"epochs":      epochs,
	})
	resp, err := client.Post(gatewayAddr+"/v1/uploads/create", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}
	var out createUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func uploadChunk(client *http.Client, f *os.File, uploadID string, index int, chunkSize, totalSize int64) error {
	offset := int64(index) * chunkSize
	size := chunkSize
	if offset+size > totalSize {
		size = totalSize - offset
	}

	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return err
	}
	sum := sha256.Sum256(buf)
	hash := hex.EncodeToString(sum[:])

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("chunk", "chunk")
	if err != nil {
		return err
	}
	if _, err := part.Write(buf); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	url := fmt.Sprintf("%s/v1/uploads/%s/chunk/%d", gatewayAddr, uploadID, index)
	req, err := http.NewRequest(http.MethodPut, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("x-chunk-sha256", hash)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	return nil
}

func completeUpload(client *http.Client, uploadID string) (*completeResponse, error) {
	url := fmt.Sprintf("%s/v1/uploads/%s/complete", gatewayAddr, uploadID)
	if includeBlobID {
		url += "?includeBlobId=1"
	}
	resp, err := client.Post(url, "application/json", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}
	var out completeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func decodeAPIError(resp *http.Response) error {
	var env apiErrorEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return fmt.Errorf("%s: %s", env.Error.Code, env.Error.Message)
}
