// Package deployment models the rpm-ostree deployment list: parsing the
// status document, resolving rollback targets, and formatting deployments
// for display.
package deployment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// idLength is how many checksum characters make a deployment id.
const idLength = 12

var (
	// ErrNoBootedDeployment is returned when the status document contains
	// no deployment marked booted. Exactly one is expected; zero means the
	// document is malformed or truncated.
	ErrNoBootedDeployment = errors.New("status lists no booted deployment")

	// ErrAmbiguousBootedDeployment is returned when more than one
	// deployment claims to be booted.
	ErrAmbiguousBootedDeployment = errors.New("status lists more than one booted deployment")

	// ErrTargetIsBooted is returned when a rollback target resolves to the
	// currently booted deployment.
	ErrTargetIsBooted = errors.New("deployment is currently booted; rolling back to it is meaningless")

	// ErrUnknownDeployment is returned when a target id matches no
	// deployment in the listing.
	ErrUnknownDeployment = errors.New("deployment not found")
)

// Deployment is one immutable snapshot of a bootable system state, built
// fresh on every status query.
type Deployment struct {
	ID        string `json:"id"`
	Origin    string `json:"origin"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
	Booted    bool   `json:"booted"`
	Pinned    bool   `json:"pinned"`
	// Index is the ordinal position in the source listing; 0 is the most
	// recently deployed. rpm-ostree addresses rollback targets by it.
	Index int `json:"index"`
}

type statusDocument struct {
	Deployments []statusEntry `json:"deployments"`
}

type statusEntry struct {
	Checksum  string          `json:"checksum"`
	Origin    string          `json:"origin"`
	Version   string          `json:"version"`
	Timestamp json.RawMessage `json:"timestamp"`
	Booted    bool            `json:"booted"`
	Pinned    bool            `json:"pinned"`
}

// ParseStatus decodes an rpm-ostree `status --json` document into
// deployments. Exactly one entry must be booted; zero or several is a
// parse anomaly and surfaced as an error rather than silently picking one.
func ParseStatus(raw []byte) ([]Deployment, error) {
	var doc statusDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing status document: %w", err)
	}
	deployments := make([]Deployment, 0, len(doc.Deployments))
	booted := 0
	for i, entry := range doc.Deployments {
		d := Deployment{
			ID:        shortID(entry.Checksum),
			Origin:    entry.Origin,
			Version:   entry.Version,
			Timestamp: formatTimestamp(entry.Timestamp),
			Booted:    entry.Booted,
			Pinned:    entry.Pinned,
			Index:     i,
		}
		if d.Booted {
			booted++
		}
		deployments = append(deployments, d)
	}
	if booted == 0 {
		return nil, ErrNoBootedDeployment
	}
	if booted > 1 {
		return nil, ErrAmbiguousBootedDeployment
	}
	return deployments, nil
}

// Booted returns the currently booted deployment from a parsed listing.
func Booted(deployments []Deployment) (Deployment, bool) {
	for _, d := range deployments {
		if d.Booted {
			return d, true
		}
	}
	return Deployment{}, false
}

// Find resolves a deployment by id, accepting the full short id or a
// unique prefix of it.
func Find(deployments []Deployment, id string) (Deployment, bool) {
	if id == "" {
		return Deployment{}, false
	}
	for _, d := range deployments {
		if d.ID == id {
			return d, true
		}
	}
	var match Deployment
	found := 0
	for _, d := range deployments {
		if strings.HasPrefix(d.ID, id) {
			match = d
			found++
		}
	}
	if found == 1 {
		return match, true
	}
	return Deployment{}, false
}

// GenerateRollbackCommand builds the rpm-ostree command that deploys the
// target. The immediately previous deployment (index 1) uses the plain
// rollback verb; anything older is deployed by checksum id. A booted
// target yields ErrTargetIsBooted and no command.
func GenerateRollbackCommand(targetID string, deployments []Deployment) ([]string, error) {
	target, ok := Find(deployments, targetID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDeployment, targetID)
	}
	if target.Booted {
		return nil, ErrTargetIsBooted
	}
	if target.Index == 1 {
		return []string{"rpm-ostree", "rollback"}, nil
	}
	return []string{"rpm-ostree", "deploy", target.ID}, nil
}

func shortID(checksum string) string {
	if len(checksum) <= idLength {
		return checksum
	}
	return checksum[:idLength]
}

// formatTimestamp renders the source timestamp for display. rpm-ostree
// emits unix seconds; some builds emit an ISO string, which is passed
// through unchanged.
func formatTimestamp(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var secs int64
	if err := json.Unmarshal(raw, &secs); err == nil {
		return time.Unix(secs, 0).UTC().Format("2006-01-02 15:04:05")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
