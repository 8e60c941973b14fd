// Package hal reads HAL+JSON documents: it locates the record collection
// under _embedded, derives foreign-key fields from singular _links relations
// and flattens nested records into a single level of scalar fields.
package hal

const (
	// LinksKey holds the relation map of a HAL document.
	LinksKey = "_links"
	// EmbeddedKey holds the embedded resource collections.
	EmbeddedKey = "_embedded"
	// SelfKey is the relation pointing at the document itself.
	SelfKey = "self"
)
