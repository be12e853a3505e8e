// Package graph maintains the note link graph in Neo4j: one node per vault
// note, one LINKS_TO edge per wiki-link. The graph is an optional enrichment
// source for search results, never a required collaborator.
package graph

// Note is a vault note node.
type Note struct {
	Path  string   `json:"path"` // vault-relative path, unique key
	Title string   `json:"title"`
	Tags  []string `json:"tags,omitempty"`
}

// Link is a wiki-link edge between two notes.
type Link struct {
	FromPath string `json:"from_path"`
	ToTitle  string `json:"to_title"` // link target as written, resolved lazily
}
