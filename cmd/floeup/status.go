package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [uploadId]",
	Short: "Check an upload's status",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runStatus(args[0]); err != nil {
			die(err)
		}
	},
}

type statusResponse struct {
	UploadID       string `json:"uploadId"`
	TotalChunks    int    `json:"totalChunks"`
	ReceivedChunks []int  `json:"receivedChunks"`
	Status         string `json:"status"`
	FileID         string `json:"fileId,omitempty"`
	Error          string `json:"error,omitempty"`
}

func runStatus(uploadID string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(fmt.Sprintf("%s/v1/uploads/%s/status", gatewayAddr, uploadID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	fmt.Printf("status: %s (%d/%d chunks)\n", out.Status, len(out.ReceivedChunks), out.TotalChunks)
	if out.FileID != "" {
		fmt.Printf("fileId: %s\n", out.FileID)
	}
	if out.Error != "" {
		fmt.Printf("error: %s\n", out.Error)
	}
	return nil
}
