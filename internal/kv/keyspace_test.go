package kv

import "testing"

func TestSessionKey_Format(t *testing.T) {
	got := SessionKey("upload-1")
	want := "floe:v1:upload:upload-1:session"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMetaKey_Format(t *testing.T) {
	got := MetaKey("upload-1")
	want := "floe:v1:upload:upload-1:meta"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestChunksKey_Format(t *testing.T) {
	got := ChunksKey("upload-1")
	want := "floe:v1:upload:upload-1:chunks"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestLockKey_Format(t *testing.T) {
	got := LockKey("upload-1")
	want := "floe:v1:upload:upload-1:meta:lock"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestGCIndexKey_IsProcessWide(t *testing.T) {
	got := GCIndexKey()
	want := "floe:v1:upload:gc:active"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFileFieldsKey_Format(t *testing.T) {
	got := FileFieldsKey("file-abc")
	want := "floe:v1:file:file-abc:fields"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestProgressChannel_Format(t *testing.T) {
	got := ProgressChannel("upload-1")
	want := "floe:v1:upload:upload-1:progress"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestKeys_AreDistinctAcrossUploads(t *testing.T) {
	if SessionKey("a") == SessionKey("b") {
		t.Fatalf("expected distinct keys for distinct upload IDs")
	}
}

func TestKeys_NamespacesDoNotCollideForSameID(t *testing.T) {
	id := "shared-id"
	keys := map[string]bool{
		SessionKey(id):    true,
		MetaKey(id):       true,
		ChunksKey(id):     true,
		LockKey(id):       true,
		ProgressChannel(id): true,
	}
	if len(keys) != 5 {
		t.Fatalf("expected 5 distinct keys for one upload ID, got %d", len(keys))
	}
}
