package kv

import "fmt"

// keyPrefix namespaces every key this gateway owns in the shared KV store,
// mirroring the teacher's per-feature key prefixes ("artifact:", "scan_result:",
// "session:", ...) but collapsed under one versioned root per §6.
const keyPrefix = "floe:v1"

// SessionKey is the hash holding a Session's mutable control-plane fields.
func SessionKey(uploadID string) string {
	return fmt.Sprintf("%s:upload:%s:session", keyPrefix, uploadID)
}

// MetaKey is the hash holding the durable Meta record that outlives Session.
func MetaKey(uploadID string) string {
	return fmt.Sprintf("%s:upload:%s:meta", keyPrefix, uploadID)
}

// ChunksKey is the set of received chunk indices (as strings) for an upload.
func ChunksKey(uploadID string) string {
	return fmt.Sprintf("%s:upload:%s:chunks", keyPrefix, uploadID)
}

// LockKey is the finalize mutual-exclusion lease.
func LockKey(uploadID string) string {
	return fmt.Sprintf("%s:upload:%s:meta:lock", keyPrefix, uploadID)
}

// GCIndexKey is the process-wide set of upload IDs known to the lifecycle.
func GCIndexKey() string {
	return fmt.Sprintf("%s:upload:gc:active", keyPrefix)
}

// FileFieldsKey caches the normalized on-chain asset fields for a fileId.
func FileFieldsKey(fileID string) string {
	return fmt.Sprintf("%s:file:%s:fields", keyPrefix, fileID)
}

// ProgressChannel is the pub/sub channel an upload's live-progress
// WebSocket watcher subscribes to, mirroring the teacher's
// "scan_updates:<id>" channel naming in cache.CacheService.
func ProgressChannel(uploadID string) string {
	return fmt.Sprintf("%s:upload:%s:progress", keyPrefix, uploadID)
}
