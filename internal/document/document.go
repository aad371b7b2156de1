package document

// Document is a compiled page ready to be submitted to the host. It is built
// once per compile and never updated afterwards.
type Document struct {
	Title      string `json:"title"`
	AuthorName string `json:"author_name,omitempty"`
	AuthorURL  string `json:"author_url,omitempty"`
	Content    []Node `json:"content"`

	// Encoded is the canonical encoding of Content, already checked against
	// the host's size ceiling.
	Encoded []byte `json:"-"`
}

// FirstImage returns the src of the first image found in the content, in
// document order.
func (d *Document) FirstImage() string {
	return FirstImage(d.Content)
}

// FirstImage returns the src of the first img element in nodes.
func FirstImage(nodes []Node) string {
	var src string
	for _, n := range nodes {
		n.Walk(func(c Node) {
			if src == "" && c.Tag == TagImage {
				src = c.Attrs["src"]
			}
		})
		if src != "" {
			return src
		}
	}
	return ""
}
