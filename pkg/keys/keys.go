// Package keys derives destination object keys from document structure.
// Key derivation is a pure function of (document name, node path,
// configuration, traversal order), which is what makes re-runs of the
// pipeline land assets on identical keys.
package keys

import (
	"fmt"
	"strings"
)

// Config fixes the parts of a key that do not depend on the node.
type Config struct {
	// Prefix is the leading key segment, e.g. "designs". Optional.
	Prefix string

	// DocumentName is the human-readable file name, sanitized into the
	// second segment.
	DocumentName string

	// Format is the export format; it becomes the file extension.
	Format string
}

// Builder derives keys of the form
//
//	prefix/document-name/page.../node-name.ext
//
// and resolves sanitized-name collisions inside the same folder by
// appending -2, -3, … in the order keys are requested. Callers must
// request keys in document traversal order for suffixes to be stable
// across runs.
type Builder struct {
	cfg  Config
	used map[string]int
}

// NewBuilder creates a Builder with an empty collision registry.
func NewBuilder(cfg Config) *Builder {
	return &Builder{cfg: cfg, used: make(map[string]int)}
}

// Key derives the destination key for a node. path holds the node names
// from the level below the document root down to the node itself; the
// last element names the object, earlier ones become folders. nodeID is
// the fallback name for nodes whose sanitized name is empty.
func (b *Builder) Key(path []string, nodeID string) string {
	segments := make([]string, 0, len(path)+2)
	if b.cfg.Prefix != "" {
		segments = append(segments, strings.Trim(b.cfg.Prefix, "/"))
	}
	segments = append(segments, fallback(Sanitize(b.cfg.DocumentName), "untitled"))

	for _, name := range path[:max(len(path)-1, 0)] {
		segments = append(segments, fallback(Sanitize(name), "unnamed"))
	}

	base := ""
	if len(path) > 0 {
		base = Sanitize(path[len(path)-1])
	}
	base = fallback(base, safeID(nodeID))

	folder := strings.Join(segments, "/")
	name := base + "." + b.cfg.Format

	// First occupant keeps the bare name; later collisions get -2, -3…
	// The suffixed key is registered too so an explicit "name-2" and a
	// generated one cannot clash.
	full := folder + "/" + name
	if count, exists := b.used[full]; exists {
		b.used[full] = count + 1
		for {
			name = fmt.Sprintf("%s-%d.%s", base, count+1, b.cfg.Format)
			if _, taken := b.used[folder+"/"+name]; !taken {
				break
			}
			count++
		}
		b.used[folder+"/"+name] = 1
	} else {
		b.used[full] = 1
	}

	return folder + "/" + name
}

// Sanitize strips path-unsafe characters from a name and collapses
// whitespace runs into single spaces. Spaces themselves are legal in
// object keys and are kept.
func Sanitize(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			sb.WriteRune(' ')
		case strings.ContainsRune(`<>:"/\|?*&`, r):
			// dropped
		default:
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func fallback(s, alt string) string {
	if s == "" {
		return alt
	}
	return s
}

// safeID turns a node id like "262:48" into a name usable as a key
// segment, matching the staging filename convention.
func safeID(nodeID string) string {
	return strings.ReplaceAll(nodeID, ":", "_")
}
