package readproxy

import (
	"testing"
	"time"

	"github.com/floegw/floe/internal/model"
)

func TestValid_RequiresBlobIDAndPositiveSize(t *testing.T) {
	cases := []struct {
		name string
		f    model.AssetFields
		want bool
	}{
		{"complete", model.AssetFields{BlobID: "b1", SizeBytes: 10}, true},
		{"blank blob id", model.AssetFields{BlobID: "   ", SizeBytes: 10}, false},
		{"empty blob id", model.AssetFields{SizeBytes: 10}, false},
		{"zero size", model.AssetFields{BlobID: "b1", SizeBytes: 0}, false},
		{"negative size", model.AssetFields{BlobID: "b1", SizeBytes: -1}, false},
	}
	for _, c := range cases {
		if got := valid(&c.f); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}

func TestNormalize_TrimsBlobIDAndDefaultsMime(t *testing.T) {
	now := time.Now()
	in := &model.AssetFields{BlobID: "  b1  ", SizeBytes: 5, CreatedAt: now, Owner: "owner"}
	out, err := normalize(in)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.BlobID != "b1" {
		t.Fatalf("got BlobID %q, want trimmed b1", out.BlobID)
	}
	if out.Mime != "application/octet-stream" {
		t.Fatalf("got Mime %q, want default octet-stream", out.Mime)
	}
	if out.Owner != "owner" || !out.CreatedAt.Equal(now) {
		t.Fatalf("got %+v", out)
	}
}

func TestNormalize_PreservesExplicitMime(t *testing.T) {
	out, err := normalize(&model.AssetFields{BlobID: "b1", SizeBytes: 5, Mime: "video/mp4"})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.Mime != "video/mp4" {
		t.Fatalf("got %q, want video/mp4", out.Mime)
	}
}

func TestNormalize_RejectsMissingBlobID(t *testing.T) {
	if _, err := normalize(&model.AssetFields{SizeBytes: 5}); err == nil {
		t.Fatalf("expected an error for a missing blob id")
	}
}

func TestNormalize_RejectsNonPositiveSize(t *testing.T) {
	if _, err := normalize(&model.AssetFields{BlobID: "b1", SizeBytes: 0}); err == nil {
		t.Fatalf("expected an error for a zero size")
	}
}
