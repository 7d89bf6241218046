package model

import "testing"

func TestSession_ExpectedChunkSize_ExactMultiple(t *testing.T) {
	s := &Session{SizeBytes: 300, ChunkSize: 100, TotalChunks: 3}
	for i := 0; i < 3; i++ {
		if got := s.ExpectedChunkSize(i); got != 100 {
			t.Fatalf("chunk %d: got %d, want 100", i, got)
		}
	}
}

func TestSession_ExpectedChunkSize_ShortLastChunk(t *testing.T) {
	s := &Session{SizeBytes: 250, ChunkSize: 100, TotalChunks: 3}
	if got := s.ExpectedChunkSize(0); got != 100 {
		t.Fatalf("chunk 0: got %d, want 100", got)
	}
	if got := s.ExpectedChunkSize(1); got != 100 {
		t.Fatalf("chunk 1: got %d, want 100", got)
	}
	if got := s.ExpectedChunkSize(2); got != 50 {
		t.Fatalf("last chunk: got %d, want 50", got)
	}
}

func TestSession_LastChunkSize_SingleChunkUpload(t *testing.T) {
	s := &Session{SizeBytes: 42, ChunkSize: 1000, TotalChunks: 1}
	if got := s.LastChunkSize(); got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}
