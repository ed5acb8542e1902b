package deployment

import (
	"fmt"
	"strings"
)

// Info is the display form of a deployment. Pure data; styling is the
// caller's concern.
type Info struct {
	Title     string `json:"title"`
	ID        string `json:"id"`
	Status    string `json:"status"`
	ImageName string `json:"image_name"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
}

// friendlyNames maps well-known image basenames to display names.
var friendlyNames = map[string]string{
	"bluefin": "Universal Blue - Bluefin",
	"aurora":  "Universal Blue - Aurora",
	"bazzite": "Universal Blue - Bazzite",
	"ucore":   "Universal Blue - uCore",
}

// FormatInfo builds the display record for a deployment, including the
// booted and pinned badges.
func FormatInfo(d Deployment) Info {
	var badges []string
	if d.Booted {
		badges = append(badges, "Currently Booted")
	}
	if d.Pinned {
		badges = append(badges, "Pinned")
	}
	if len(badges) == 0 {
		badges = append(badges, "Available")
	}
	return Info{
		Title:     fmt.Sprintf("Deployment %d", d.Index+1),
		ID:        d.ID,
		Status:    strings.Join(badges, ", "),
		ImageName: imageName(d.Origin),
		Version:   d.Version,
		Timestamp: d.Timestamp,
	}
}

// imageName derives a human-readable name from an image origin. Known
// Universal Blue images get their product name; everything else shows the
// origin as-is.
func imageName(origin string) string {
	if origin == "" {
		return "Unknown"
	}
	base := origin
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if j := strings.Index(base, ":"); j >= 0 {
		base = base[:j]
	}
	for prefix, name := range friendlyNames {
		if strings.HasPrefix(base, prefix) {
			return name
		}
	}
	return origin
}
