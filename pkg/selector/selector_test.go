package selector

import (
	"errors"
	"reflect"
	"testing"

	"github.com/hellenic-development/figma-publisher/pkg/document"
	"github.com/hellenic-development/figma-publisher/pkg/figma"
)

func boolPtr(b bool) *bool { return &b }

func buildDoc(t *testing.T) *document.Document {
	t.Helper()
	return document.Build("KEY", &figma.FileResponse{
		Name: "Test Doc",
		Document: figma.Node{
			ID: "0:0", Name: "Document", Type: "DOCUMENT",
			Children: []figma.Node{
				{
					ID: "1:1", Name: "Page 1", Type: "CANVAS",
					Children: []figma.Node{
						{
							ID: "2:1", Name: "Hero", Type: "FRAME",
							Children: []figma.Node{
								{ID: "3:1", Name: "Logo", Type: "VECTOR"},
								{ID: "3:2", Name: "Caption", Type: "TEXT"},
								{ID: "3:3", Name: "Ghost", Type: "VECTOR", Visible: boolPtr(false)},
							},
						},
						{ID: "2:2", Name: "Buttons", Type: "COMPONENT_SET"},
					},
				},
				{
					ID: "1:2", Name: "Page 2", Type: "CANVAS",
					Children: []figma.Node{
						{ID: "2:3", Name: "Hero", Type: "FRAME"},
						{ID: "2:4", Name: "Notes", Type: "TEXT"},
					},
				},
			},
		},
	})
}

func TestFullSelectsRenderableNodesInPreOrder(t *testing.T) {
	ids, warnings, err := Full().Select(buildDoc(t))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none in full mode", warnings)
	}

	// TEXT, CANVAS, DOCUMENT, and hidden nodes are excluded.
	want := []string{"2:1", "3:1", "2:2", "2:3"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestFullEmptyDocumentAborts(t *testing.T) {
	doc := document.Build("KEY", &figma.FileResponse{
		Name:     "Empty",
		Document: figma.Node{ID: "0:0", Name: "Document", Type: "DOCUMENT"},
	})

	_, _, err := Full().Select(doc)
	if !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("Select() error = %v, want ErrEmptySelection", err)
	}
}

func TestNamesMatchesCaseInsensitively(t *testing.T) {
	ids, warnings, err := Names("pAgE 1").Select(buildDoc(t))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}

	want := []string{"2:1", "3:1", "2:2"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestNamesUnknownNameIsWarningNotError(t *testing.T) {
	ids, warnings, err := Names("Page 1", "No Such Page").Select(buildDoc(t))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	if len(ids) == 0 {
		t.Error("ids empty, want Page 1 selection to survive the miss")
	}
	if len(warnings) != 1 || warnings[0].Name != "No Such Page" {
		t.Errorf("warnings = %v, want one for \"No Such Page\"", warnings)
	}
}

func TestNamesAllMissesAborts(t *testing.T) {
	_, warnings, err := Names("Nope", "Also Nope").Select(buildDoc(t))
	if !errors.Is(err, ErrEmptySelection) {
		t.Fatalf("Select() error = %v, want ErrEmptySelection", err)
	}
	if len(warnings) != 2 {
		t.Errorf("warnings = %v, want one per missed name", warnings)
	}
}

func TestNamesMultiMatchSelectsAllAndCounts(t *testing.T) {
	// "Hero" exists on both pages.
	ids, warnings, counts, err := Names("Hero").SelectWithCounts(buildDoc(t))
	if err != nil {
		t.Fatalf("SelectWithCounts() error = %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}

	want := []string{"2:1", "3:1", "2:3"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want both Hero subtrees in pre-order: %v", ids, want)
	}
	if len(counts) != 1 || counts[0].Count != 2 {
		t.Errorf("counts = %v, want Hero matched twice", counts)
	}
}

func TestNamesNoDuplicateIDs(t *testing.T) {
	// "Page 1" contains "Hero"; selecting both must not duplicate the
	// Hero subtree.
	ids, _, err := Names("Page 1", "Hero").Select(buildDoc(t))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %s in %v", id, ids)
		}
		seen[id] = true
	}
}

func TestSelectionErrorMessage(t *testing.T) {
	err := &SelectionError{Name: "Missing"}
	if got := err.Error(); got == "" {
		t.Error("Error() returned empty string")
	}
}
