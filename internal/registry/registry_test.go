package registry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ULilBagel/ublue-rebase-tool/internal/validate"
)

const tagFixture = `{
  "Repository": "ghcr.io/ublue-os/bluefin",
  "Tags": ["stable", "testing", "latest", "40-20240513", "40-20240520", "39-20240101", "gts"]
}`

func fixtureRunner(calls *atomic.Int32) Runner {
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		calls.Add(1)
		return []byte(tagFixture), nil
	}
}

func TestListTags(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(validate.Default(), nil, WithRunner(fixtureRunner(&calls)))

	tags, err := m.ListTags(context.Background(), "ghcr.io/ublue-os", "bluefin")
	if err != nil {
		t.Fatalf("ListTags failed: %v", err)
	}
	if len(tags) != 7 {
		t.Errorf("expected 7 tags, got %d", len(tags))
	}
	if calls.Load() != 1 {
		t.Errorf("expected one skopeo call, got %d", calls.Load())
	}
}

func TestListTagsRejectsUnknownRegistry(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(validate.Default(), nil, WithRunner(fixtureRunner(&calls)))

	if _, err := m.ListTags(context.Background(), "docker.io/library", "ubuntu"); err == nil {
		t.Fatal("expected rejection for unknown registry")
	}
	if _, err := m.ListTags(context.Background(), "ghcr.io/ublue-os", "random"); err == nil {
		t.Fatal("expected rejection for unlisted image")
	}
	if calls.Load() != 0 {
		t.Error("no query may run for a disallowed reference")
	}
}

func TestListTagsCaches(t *testing.T) {
	var calls atomic.Int32
	now := time.Now()
	clock := func() time.Time { return now }
	m := NewManager(validate.Default(), nil, WithRunner(fixtureRunner(&calls)), WithClock(clock))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := m.ListTags(ctx, "ghcr.io/ublue-os", "bluefin"); err != nil {
			t.Fatal(err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("cached lookups must not re-query, got %d calls", calls.Load())
	}

	// Past the TTL the cache refreshes.
	now = now.Add(cacheTTL + time.Second)
	if _, err := m.ListTags(ctx, "ghcr.io/ublue-os", "bluefin"); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("expired cache should re-query, got %d calls", calls.Load())
	}
}

func TestListTagsRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	runner := func(ctx context.Context, name string, args ...string) ([]byte, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("connection reset")
		}
		return []byte(tagFixture), nil
	}
	m := NewManager(validate.Default(), nil, WithRunner(runner))

	tags, err := m.ListTags(context.Background(), "ghcr.io/ublue-os", "bluefin")
	if err != nil {
		t.Fatalf("expected retries to recover: %v", err)
	}
	if len(tags) == 0 {
		t.Error("expected tags after retry")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestListImages(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(validate.Default(), nil, WithRunner(fixtureRunner(&calls)))

	t.Run("stable branch filters and sorts newest first", func(t *testing.T) {
		images, err := m.ListImages(context.Background(), "ghcr.io/ublue-os", "bluefin", "stable")
		if err != nil {
			t.Fatal(err)
		}
		// "stable" matches the bare tag only; date-stamped builds carry no
		// branch name in this fixture.
		if len(images) != 1 || images[0].Tag != "stable" {
			t.Fatalf("stable filter mismatch: %+v", images)
		}
	})

	t.Run("numeric prefix branch", func(t *testing.T) {
		images, err := m.ListImages(context.Background(), "ghcr.io/ublue-os", "bluefin", "40")
		if err != nil {
			t.Fatal(err)
		}
		if len(images) != 2 {
			t.Fatalf("expected 2 release-40 images, got %+v", images)
		}
		if images[0].Tag != "40-20240520" || images[1].Tag != "40-20240513" {
			t.Errorf("date sort mismatch: %+v", images)
		}
		if images[0].Date.Format("20060102") != "20240520" {
			t.Errorf("date extraction mismatch: %v", images[0].Date)
		}
	})

	t.Run("empty branch matches everything", func(t *testing.T) {
		images, err := m.ListImages(context.Background(), "ghcr.io/ublue-os", "bluefin", "")
		if err != nil {
			t.Fatal(err)
		}
		if len(images) != 7 {
			t.Errorf("expected all tags, got %d", len(images))
		}
	})
}

func TestMatchesBranch(t *testing.T) {
	cases := []struct {
		tag, branch string
		want        bool
	}{
		{"stable", "stable", true},
		{"41-stable", "stable", true},
		{"stable-20240520", "stable", true},
		{"testing", "stable", false},
		{"40-20240520", "stable", false},
		{"40-20240520", "40", true},
		{"gts", "", true},
	}
	for _, c := range cases {
		if got := matchesBranch(c.tag, c.branch); got != c.want {
			t.Errorf("matchesBranch(%q, %q) = %v, want %v", c.tag, c.branch, got, c.want)
		}
	}
}

func TestImageFullRef(t *testing.T) {
	img := Image{Registry: "ghcr.io/ublue-os", Name: "bluefin", Tag: "stable"}
	want := "ostree-unverified-registry:ghcr.io/ublue-os/bluefin:stable"
	if img.FullRef() != want {
		t.Errorf("FullRef mismatch: %q", img.FullRef())
	}
	// The rendered reference must be usable as a rebase target as-is.
	if err := validate.Default().ValidateImageReference(img.FullRef()); err != nil {
		t.Errorf("FullRef does not validate: %v", err)
	}
}
