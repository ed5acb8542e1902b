// Package validate implements the allow-list checks that stand between a
// user-supplied image reference and a privileged rpm-ostree invocation.
//
// Everything here is a pure function over its inputs. Nothing is spawned,
// nothing is read from disk; callers run these checks before any process
// is created.
package validate

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// Kind identifies the category of a validation failure.
type Kind int

const (
	// KindDisallowedProgram: command[0] is not the allow-listed program,
	// or the subcommand is not in the permitted set.
	KindDisallowedProgram Kind = iota
	// KindDangerousCharacter: an argument contains a shell metacharacter.
	KindDangerousCharacter
	// KindTooLong: the image reference exceeds MaxReferenceLength.
	KindTooLong
	// KindSuspiciousPattern: the reference matches a known injection or
	// traversal pattern.
	KindSuspiciousPattern
	// KindDisallowedRegistryOrPath: the reference's registry or image path
	// is not in the configured allow-list.
	KindDisallowedRegistryOrPath
)

func (k Kind) String() string {
	switch k {
	case KindDisallowedProgram:
		return "disallowed-program"
	case KindDangerousCharacter:
		return "dangerous-character"
	case KindTooLong:
		return "too-long"
	case KindSuspiciousPattern:
		return "suspicious-pattern"
	case KindDisallowedRegistryOrPath:
		return "disallowed-registry"
	}
	return "unknown"
}

// Error is a validation failure. The message is safe to show to users
// verbatim; it never echoes unsanitized input beyond quoting it.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// MaxReferenceLength caps user-supplied image references.
const MaxReferenceLength = 512

// Program is the only binary a validated command may invoke.
const Program = "rpm-ostree"

// dangerousChars are shell metacharacters that must never appear in an
// argument. Commands are executed as argument vectors, never through a
// shell, so these have no legitimate use.
const dangerousChars = ";|&`$><\n\r"

// suspiciousPatterns match injection and traversal attempts in image
// references. These run before the registry allow-list so a malicious
// reference is rejected on pattern grounds even when its prefix looks
// allow-listed.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[;&|<>$\x60]`),       // shell metacharacters
	regexp.MustCompile(`[\s]`),               // embedded whitespace
	regexp.MustCompile(`[\x00-\x1f\x7f]`),    // control characters
	regexp.MustCompile(`\.\.`),               // path traversal
	regexp.MustCompile(`//`),                 // doubled separator / protocol smuggling
	regexp.MustCompile(`\\`),                 // backslash escapes
	regexp.MustCompile(`\$\{`),               // variable expansion
	regexp.MustCompile(`^[a-z][a-z0-9+.-]*:/`), // explicit scheme (oci://, docker://)
}

// tagPattern is the shape of an acceptable image tag.
var tagPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// transportPrefixes are the ostree container transports rpm-ostree
// accepts as a rebase target. The reference behind the transport is
// checked bare; any other transport is rejected by the suspicious
// pattern checks.
var transportPrefixes = []string{
	"ostree-unverified-registry:",
	"ostree-image-signed:docker://",
}

// Registry describes one permitted registry namespace: a host/org prefix
// and glob patterns for the image names allowed under it.
type Registry struct {
	Prefix string   `mapstructure:"prefix" yaml:"prefix"`
	Images []string `mapstructure:"images" yaml:"images"`
}

// Allowlist is the closed set of values a command may be built from.
type Allowlist struct {
	Program     string
	Subcommands []string
	Registries  []Registry
}

// Default returns the allow-list shipped with the tool: the rpm-ostree
// subcommands the UI can drive and the Universal Blue / Fedora ostree
// image namespaces.
func Default() *Allowlist {
	return &Allowlist{
		Program: Program,
		Subcommands: []string{
			"status", "rebase", "rollback", "deploy", "cancel", "kargs", "upgrade",
		},
		Registries: []Registry{
			{
				Prefix: "ghcr.io/ublue-os",
				Images: []string{"bluefin*", "aurora*", "bazzite*", "ucore*", "silverblue*", "kinoite*"},
			},
			{
				Prefix: "quay.io/fedora-ostree-desktop",
				Images: []string{"silverblue", "kinoite", "sericea", "onyx", "base"},
			},
			{
				Prefix: "registry.fedoraproject.org/fedora",
				Images: []string{"fedora-silverblue", "fedora-kinoite", "fedora-sericea", "fedora-onyx"},
			},
		},
	}
}

// ValidateCommand checks a fully-assembled argument vector against the
// allow-list. Token zero must be the allow-listed program, the subcommand
// must be in the permitted set, and no argument may contain a shell
// metacharacter.
func (a *Allowlist) ValidateCommand(command []string) error {
	if len(command) == 0 {
		return newError(KindDisallowedProgram, "empty command")
	}
	if command[0] != a.Program {
		return newError(KindDisallowedProgram, "program %q is not allowed; only %q may be executed", command[0], a.Program)
	}
	if len(command) > 1 && len(a.Subcommands) > 0 {
		sub := command[1]
		found := false
		for _, s := range a.Subcommands {
			if sub == s {
				found = true
				break
			}
		}
		if !found {
			return newError(KindDisallowedProgram, "unsupported %s subcommand %q", a.Program, sub)
		}
	}
	for _, arg := range command[1:] {
		if i := strings.IndexAny(arg, dangerousChars); i >= 0 {
			return newError(KindDangerousCharacter, "argument %q contains dangerous character %q", arg, arg[i])
		}
	}
	return nil
}

// ValidateImageReference checks a user-supplied image reference before it
// is embedded into a rebase command. A known ostree transport prefix is
// stripped first; the remaining checks run in a fixed order: length,
// suspicious patterns, tag shape, registry allow-list, and finally the
// assembled command itself.
func (a *Allowlist) ValidateImageReference(ref string) error {
	if len(ref) > MaxReferenceLength {
		return newError(KindTooLong, "image reference too long (%d characters, maximum %d)", len(ref), MaxReferenceLength)
	}
	if ref == "" {
		return newError(KindSuspiciousPattern, "image reference is empty")
	}

	bare := ref
	for _, p := range transportPrefixes {
		if rest, ok := strings.CutPrefix(ref, p); ok {
			bare = rest
			break
		}
	}

	for _, p := range suspiciousPatterns {
		if p.MatchString(bare) {
			return newError(KindSuspiciousPattern, "image reference contains suspicious pattern %q", p.String())
		}
	}

	name, tag, ok := strings.Cut(bare, ":")
	if !ok || tag == "" {
		return newError(KindSuspiciousPattern, "image reference has a suspicious pattern: missing tag")
	}
	if !tagPattern.MatchString(tag) {
		return newError(KindSuspiciousPattern, "image tag %q contains a suspicious pattern", tag)
	}

	reg := a.matchRegistry(name)
	if reg == nil {
		return newError(KindDisallowedRegistryOrPath,
			"registry for %q is not allowed (permitted: %s)", name, strings.Join(a.registryPrefixes(), ", "))
	}
	image := strings.TrimPrefix(name, reg.Prefix+"/")
	if !reg.Allows(image) {
		return newError(KindDisallowedRegistryOrPath,
			"image path %q is not allowed for registry %s (permitted: %s)", image, reg.Prefix, strings.Join(reg.Images, ", "))
	}

	// The reference must also survive as the dynamic argument of the
	// command it will be embedded in.
	return a.ValidateCommand([]string{a.Program, "rebase", ref})
}

func (a *Allowlist) matchRegistry(name string) *Registry {
	for i := range a.Registries {
		if strings.HasPrefix(name, a.Registries[i].Prefix+"/") {
			return &a.Registries[i]
		}
	}
	return nil
}

func (a *Allowlist) registryPrefixes() []string {
	out := make([]string, len(a.Registries))
	for i, r := range a.Registries {
		out[i] = r.Prefix
	}
	return out
}

// Allows reports whether the bare image name matches one of the
// registry's permitted patterns.
func (r *Registry) Allows(image string) bool {
	if image == "" || strings.Contains(image, "/") {
		return false
	}
	for _, pattern := range r.Images {
		if ok, err := path.Match(pattern, image); err == nil && ok {
			return true
		}
	}
	return false
}
