// Package selector computes the set of node ids to export from a
// document, either everything renderable (full mode) or the subtrees
// matching caller-supplied page/frame names (selective mode).
package selector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hellenic-development/figma-publisher/pkg/document"
)

// ErrEmptySelection aborts the run: nothing matched, so there is no
// useful work to do.
var ErrEmptySelection = errors.New("selector: no exportable nodes selected")

// SelectionError records a selective-mode name that matched nothing.
// Per-name and non-fatal unless the overall selection is empty.
type SelectionError struct {
	Name string
}

func (e *SelectionError) Error() string {
	return fmt.Sprintf("selector: no node named %q in the document", e.Name)
}

// Strategy computes the exportable node id set for a document. The
// returned ids are deduplicated and in depth-first pre-order, so every
// downstream stage sees a deterministic ordering. Warnings carry
// per-name selection failures that did not abort the run.
type Strategy interface {
	Select(doc *document.Document) (ids []string, warnings []*SelectionError, err error)
}

// Node types the image renderer can produce meaningful output for.
var exportableTypes = map[string]bool{
	"FRAME":         true,
	"COMPONENT":     true,
	"COMPONENT_SET": true,
	"INSTANCE":      true,
	"VECTOR":        true,
}

func exportable(n *document.Node) bool {
	return n.Visible && exportableTypes[n.Type]
}

// Full selects every visible renderable node below the page level.
func Full() Strategy {
	return fullStrategy{}
}

type fullStrategy struct{}

func (fullStrategy) Select(doc *document.Document) ([]string, []*SelectionError, error) {
	var ids []string
	seen := make(map[string]bool)

	doc.Walk(func(n *document.Node) bool {
		if exportable(n) && !seen[n.ID] {
			seen[n.ID] = true
			ids = append(ids, n.ID)
		}
		return true
	})

	if len(ids) == 0 {
		return nil, nil, ErrEmptySelection
	}
	return ids, nil, nil
}

// Names selects the subtrees of nodes whose name equals one of the
// given names, case-insensitively, at any depth. A matched node that is
// itself renderable is selected along with its renderable descendants.
// Names that match nothing are reported as warnings; if every name
// misses, the selection is empty and the run aborts.
func Names(names ...string) *NamesStrategy {
	return &NamesStrategy{names: names}
}

// NamesStrategy is the selective-mode Strategy. It additionally exposes
// per-name match counts via SelectWithCounts.
type NamesStrategy struct {
	names []string
}

// MatchCount holds how many nodes a selective name matched. Exposed so
// callers can report multi-match names instead of silently exporting
// more than the user may have expected.
type MatchCount struct {
	Name  string
	Count int
}

func (s *NamesStrategy) Select(doc *document.Document) ([]string, []*SelectionError, error) {
	ids, warnings, _, err := s.selectWithCounts(doc)
	return ids, warnings, err
}

// SelectWithCounts is Select plus the per-name match counts. A name
// matching more than one node exports every match; the count lets the
// caller surface that instead of guessing a single-pick intent.
func (s *NamesStrategy) SelectWithCounts(doc *document.Document) ([]string, []*SelectionError, []MatchCount, error) {
	return s.selectWithCounts(doc)
}

func (s *NamesStrategy) selectWithCounts(doc *document.Document) ([]string, []*SelectionError, []MatchCount, error) {
	matchCounts := make([]int, len(s.names))
	matched := make(map[string]bool) // roots of selected subtrees

	doc.Walk(func(n *document.Node) bool {
		for i, name := range s.names {
			if strings.EqualFold(n.Name, name) {
				matchCounts[i]++
				matched[n.ID] = true
			}
		}
		return true
	})

	var warnings []*SelectionError
	counts := make([]MatchCount, 0, len(s.names))
	for i, name := range s.names {
		counts = append(counts, MatchCount{Name: name, Count: matchCounts[i]})
		if matchCounts[i] == 0 {
			warnings = append(warnings, &SelectionError{Name: name})
		}
	}

	// Single pre-order pass keeps the output deterministic regardless
	// of how many names matched a given subtree. Pre-order guarantees a
	// parent's selection state is known before its children are visited.
	var ids []string
	seen := make(map[string]bool)
	inMatched := make(map[string]bool)
	doc.Walk(func(n *document.Node) bool {
		selected := matched[n.ID] || (n.Parent != "" && inMatched[n.Parent])
		inMatched[n.ID] = selected
		if selected && exportable(n) && !seen[n.ID] {
			seen[n.ID] = true
			ids = append(ids, n.ID)
		}
		return true
	})

	if len(ids) == 0 {
		return nil, warnings, counts, ErrEmptySelection
	}
	return ids, warnings, counts, nil
}
