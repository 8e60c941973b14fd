package hal

import (
	"net/url"
	"strings"
)

// ResolveRelations adds a <relation>_id field for every singular relation in
// the record's _links map. A relation is singular unless it is self or its
// name ends in "s". The _links value itself is left as is.
func ResolveRelations(record map[string]interface{}) {
	links, ok := record[LinksKey].(map[string]interface{})
	if !ok {
		return
	}
	for rel, v := range links {
		if !IsSingular(rel) {
			continue
		}
		link, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		href, ok := link["href"].(string)
		if !ok {
			continue
		}
		record[rel+"_id"] = IDFromHref(href)
	}
}

// IsSingular reports whether a relation name refers to a single entity.
func IsSingular(rel string) bool {
	return rel != SelfKey && !strings.HasSuffix(rel, "s")
}

// IDFromHref returns the last non-empty path segment of href, or "" when the
// path has none.
func IDFromHref(href string) string {
	path := href
	if u, err := url.Parse(href); err == nil {
		path = u.Path
	}
	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if segments[i] != "" {
			return segments[i]
		}
	}
	return ""
}
