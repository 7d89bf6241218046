package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Flags.
var (
	gatewayAddr   string
	chunkOverride int64
	epochs        int
	includeBlobID bool
)

var rootCmd = &cobra.Command{
	Use:   "floeup",
	Short: "floeup uploads a file to a floe gateway",
	Long:  "floeup sniffs a file's content type, opens a chunked upload session against a floe gateway, and drives it to completion.",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&gatewayAddr, "gateway", envOr("FLOEUP_GATEWAY", "http://localhost:8080"), "floe gateway base URL")

	uploadCmd.Flags().Int64Var(&chunkOverride, "chunk-size", 0, "override the chunk size the gateway assigns (bytes)")
	uploadCmd.Flags().IntVar(&epochs, "epochs", 0, "storage duration in epochs (0 lets the gateway pick its default)")
	uploadCmd.Flags().BoolVar(&includeBlobID, "show-blob-id", false, "request the raw blobId in the response")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.Execute(); err != nil {
		die(err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func die(args ...interface{}) {
	fmt.Fprintln(os.Stderr, args...)
	os.Exit(1)
}
