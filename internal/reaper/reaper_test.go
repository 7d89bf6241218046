package reaper

import (
	"os"
	"testing"
	"time"

	"github.com/floegw/floe/internal/chunkstore"
	"github.com/floegw/floe/internal/model"
)

func TestTrimAssembledSuffix(t *testing.T) {
	id := "4b1a2c3d-0000-0000-0000-000000000001"
	if got := trimAssembledSuffix(id + assembledSuffix); got != id {
		t.Fatalf("got %q, want %q", got, id)
	}
	if got := trimAssembledSuffix(id); got != id {
		t.Fatalf("expected unsuffixed name unchanged, got %q", got)
	}
	if got := trimAssembledSuffix("short"); got != "short" {
		t.Fatalf("expected short names to survive without panicking, got %q", got)
	}
}

func TestCollectibleStatuses(t *testing.T) {
	for _, s := range []model.Status{model.StatusFailed, model.StatusExpired, model.StatusCanceled} {
		if !collectibleStatuses[s] {
			t.Fatalf("expected %s to be collectible", s)
		}
	}
	for _, s := range []model.Status{model.StatusUploading, model.StatusFinalizing, model.StatusCompleted} {
		if collectibleStatuses[s] {
			t.Fatalf("expected %s to NOT be collectible", s)
		}
	}
}

func TestArtifactAge_PrefersAssembledFileOverChunkDir(t *testing.T) {
	root := t.TempDir()
	store := chunkstore.New(root)
	r := &Reaper{chunks: store}
	uploadID := "upload-with-both"

	if err := store.EnsureUploadDir(uploadID); err != nil {
		t.Fatalf("EnsureUploadDir: %v", err)
	}

	assembledPath := store.AssembledPath(uploadID)
	if err := os.WriteFile(assembledPath, []byte("assembled bytes"), 0o640); err != nil {
		t.Fatalf("seed assembled file: %v", err)
	}

	age, ok := r.artifactAge(uploadID)
	if !ok {
		t.Fatalf("expected an artifact to be found")
	}
	if age < 0 || age > time.Minute {
		t.Fatalf("unexpected age: %v", age)
	}
}

func TestArtifactAge_FallsBackToChunkDirWhenNoAssembledFile(t *testing.T) {
	root := t.TempDir()
	store := chunkstore.New(root)
	r := &Reaper{chunks: store}
	uploadID := "upload-dir-only"
	store.EnsureUploadDir(uploadID)

	age, ok := r.artifactAge(uploadID)
	if !ok {
		t.Fatalf("expected chunk dir to count as an artifact")
	}
	if age < 0 {
		t.Fatalf("unexpected negative age: %v", age)
	}
}

func TestArtifactAge_NoArtifactAtAll(t *testing.T) {
	store := chunkstore.New(t.TempDir())
	r := &Reaper{chunks: store}
	_, ok := r.artifactAge("never-existed")
	if ok {
		t.Fatalf("expected no artifact to be found")
	}
}
