package figma

// FileResponse is the response from the Figma file endpoint: file
// metadata plus the full document tree.
type FileResponse struct {
	Name          string `json:"name"`
	LastModified  string `json:"lastModified"`
	Version       string `json:"version"`
	Document      Node   `json:"document"`
	SchemaVersion int    `json:"schemaVersion"`
}

// Node is a single element of the document tree as the API serializes
// it. Visible is a pointer because the API omits the field for visible
// nodes and sends false only when a layer is hidden.
type Node struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Visible  *bool  `json:"visible,omitempty"`
	Children []Node `json:"children,omitempty"`
}

// Hidden reports whether the designer switched the layer off.
func (n *Node) Hidden() bool {
	return n.Visible != nil && !*n.Visible
}

// ImagesResponse is the response from the image render endpoint. Images
// maps node id to a temporary download URL; nodes the renderer could
// not process are omitted or mapped to an empty string.
type ImagesResponse struct {
	Err    string            `json:"err,omitempty"`
	Images map[string]string `json:"images"`
}
