package executor

import "strings"

// ErrorKind categorizes a failed execution into something the caller can
// act on.
type ErrorKind string

const (
	ErrKindNone           ErrorKind = ""
	ErrKindNetwork        ErrorKind = "network"
	ErrKindAuth           ErrorKind = "auth"
	ErrKindTimeout        ErrorKind = "timeout"
	ErrKindBusy           ErrorKind = "busy"
	ErrKindNotFound       ErrorKind = "not_found"
	ErrKindInvalidCommand ErrorKind = "invalid_command"
	ErrKindUnknown        ErrorKind = "unknown"
)

// Remedy returns a suggested remedial action for kinds that have one,
// structured data the presentation layer can turn into a retry affordance.
func (k ErrorKind) Remedy() string {
	switch k {
	case ErrKindAuth:
		return "Re-run the operation and complete the authentication prompt."
	case ErrKindBusy:
		return "Another rpm-ostree transaction is in progress; wait for it to finish or run 'rpm-ostree cancel'."
	}
	return ""
}

// classifyWindow is how many trailing output lines the classifier scans.
const classifyWindow = 5

// Rule maps output substrings to an error kind. Substring matching is
// case-insensitive.
type Rule struct {
	Kind       ErrorKind
	Substrings []string
}

// Classifier assigns an ErrorKind to failed output by scanning the most
// recent lines first. The rule table is data, not code: the rpm-ostree
// message catalog drifts between releases and deployments tune it in
// place of patching.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier from an ordered rule table. Earlier
// rules win within a line.
func NewClassifier(rules []Rule) *Classifier {
	return &Classifier{rules: rules}
}

// DefaultClassifier carries the message catalog observed from rpm-ostree
// and its container backend.
func DefaultClassifier() *Classifier {
	return NewClassifier([]Rule{
		{Kind: ErrKindNetwork, Substrings: []string{
			"unable to connect", "could not resolve", "no such host",
			"network", "connection refused", "dial tcp",
		}},
		{Kind: ErrKindAuth, Substrings: []string{
			"permission denied", "authentication", "authorization failed",
			"unauthorized", "access denied", "polkit", "not authorized",
		}},
		{Kind: ErrKindBusy, Substrings: []string{
			"transaction already in use", "another transaction", "busy",
		}},
		{Kind: ErrKindNotFound, Substrings: []string{
			"no such deployment", "deployment not found", "no such image",
			"failed to resolve ref", "not found",
		}},
		{Kind: ErrKindTimeout, Substrings: []string{
			"timed out", "timeout",
		}},
	})
}

// Classify scans the last few lines, newest first, and returns the kind
// of the first matching rule. No match degrades to Unknown, never to an
// error.
func (c *Classifier) Classify(lines []string) ErrorKind {
	start := len(lines) - classifyWindow
	if start < 0 {
		start = 0
	}
	for i := len(lines) - 1; i >= start; i-- {
		line := strings.ToLower(lines[i])
		for _, rule := range c.rules {
			for _, sub := range rule.Substrings {
				if strings.Contains(line, sub) {
					return rule.Kind
				}
			}
		}
	}
	return ErrKindUnknown
}
