// Package registry browses container registries for available image tags
// using skopeo. Queries are read-only, deduplicated, retried with
// exponential backoff, and cached for a short window.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/ULilBagel/ublue-rebase-tool/internal/validate"
)

const (
	cacheTTL     = 5 * time.Minute
	queryTimeout = 30 * time.Second
)

// Image is one rebase candidate discovered in a registry.
type Image struct {
	Registry string `json:"registry"`
	Name     string `json:"name"`
	Tag      string `json:"tag"`
	// Date is parsed from date-stamped tags (YYYYMMDD), zero otherwise.
	Date time.Time `json:"date,omitzero"`
}

// FullRef renders the image as an ostree-unverified-registry reference
// suitable for a rebase command.
func (i Image) FullRef() string {
	return fmt.Sprintf("ostree-unverified-registry:%s/%s:%s", i.Registry, i.Name, i.Tag)
}

// Runner executes a registry query command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

type cacheEntry struct {
	tags    []string
	fetched time.Time
}

// Manager lists tags from the registries on the allow-list. Safe for
// concurrent use; identical in-flight queries are collapsed.
type Manager struct {
	allow  *validate.Allowlist
	runner Runner
	logger *slog.Logger

	group singleflight.Group

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

// Option adjusts a Manager.
type Option func(*Manager)

// WithRunner replaces the skopeo invocation, for tests.
func WithRunner(r Runner) Option {
	return func(m *Manager) { m.runner = r }
}

// WithClock replaces the cache clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager builds a registry browser scoped to the given allow-list.
func NewManager(allow *validate.Allowlist, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{
		allow:  allow,
		runner: execRunner,
		logger: logger,
		cache:  make(map[string]cacheEntry),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// tagList mirrors skopeo list-tags output.
type tagList struct {
	Repository string   `json:"Repository"`
	Tags       []string `json:"Tags"`
}

// ListTags returns all tags published for registry/image. Results are
// cached for five minutes; concurrent callers share one fetch.
func (m *Manager) ListTags(ctx context.Context, registry, image string) ([]string, error) {
	ref := registry + "/" + image
	if !m.allowed(registry, image) {
		return nil, fmt.Errorf("registry %s is not allowed", ref)
	}

	m.mu.Lock()
	if entry, ok := m.cache[ref]; ok && m.now().Sub(entry.fetched) < cacheTTL {
		tags := entry.tags
		m.mu.Unlock()
		return tags, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(ref, func() (any, error) {
		return m.fetchTags(ctx, ref)
	})
	if err != nil {
		return nil, err
	}
	tags := v.([]string)

	m.mu.Lock()
	m.cache[ref] = cacheEntry{tags: tags, fetched: m.now()}
	m.mu.Unlock()
	return tags, nil
}

// fetchTags runs skopeo with retries. Only queries are retried; the
// command mutates nothing.
func (m *Manager) fetchTags(ctx context.Context, ref string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	var out []byte
	err := backoff.Retry(func() error {
		var err error
		out, err = m.runner(ctx, "skopeo", "list-tags", "docker://"+ref)
		if err != nil {
			m.logger.Debug("tag query failed, retrying", "ref", ref, "error", err)
		}
		return err
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("listing tags for %s: %w", ref, err)
	}

	var list tagList
	if err := json.Unmarshal(out, &list); err != nil {
		return nil, fmt.Errorf("parsing tag list for %s: %w", ref, err)
	}
	return list.Tags, nil
}

var dateTag = regexp.MustCompile(`\d{8}`)

// ListImages returns the images available for registry/image filtered to
// one branch, sorted newest first by stamped date. Branch "stable" or
// "testing" matches any tag containing the branch name, including
// release-numbered builds like "41-stable"; any other branch matches by
// prefix. An empty branch matches everything.
func (m *Manager) ListImages(ctx context.Context, registry, image, branch string) ([]Image, error) {
	tags, err := m.ListTags(ctx, registry, image)
	if err != nil {
		return nil, err
	}

	var images []Image
	for _, tag := range tags {
		if !matchesBranch(tag, branch) {
			continue
		}
		img := Image{Registry: registry, Name: image, Tag: tag}
		if ms := dateTag.FindString(tag); ms != "" {
			if d, err := time.Parse("20060102", ms); err == nil {
				img.Date = d
			}
		}
		images = append(images, img)
	}

	sort.SliceStable(images, func(i, j int) bool {
		if !images[i].Date.Equal(images[j].Date) {
			return images[i].Date.After(images[j].Date)
		}
		return images[i].Tag > images[j].Tag
	})
	return images, nil
}

// Registries reports the allow-listed registries, for display.
func (m *Manager) Registries() []validate.Registry {
	return m.allow.Registries
}

func (m *Manager) allowed(registry, image string) bool {
	for i := range m.allow.Registries {
		r := &m.allow.Registries[i]
		if r.Prefix == registry && r.Allows(image) {
			return true
		}
	}
	return false
}

func matchesBranch(tag, branch string) bool {
	switch branch {
	case "":
		return true
	case "stable", "testing":
		// Covers the bare branch tag and composites like "41-stable" or
		// "stable-20240520".
		return strings.Contains(tag, branch)
	default:
		return strings.HasPrefix(tag, branch)
	}
}
