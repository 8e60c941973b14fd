package pagination

import (
	"net/url"

	"github.com/ajitpratap0/nebula-omnivore/pkg/json"
)

// DefaultMaxPages bounds a single stream invocation when no cap is configured.
const DefaultMaxPages = 10

// HATEOASPaginator follows _links.next.href and stops after a fixed number of
// pages even if the API keeps advertising a next link. A paginator belongs
// to exactly one stream invocation.
type HATEOASPaginator struct {
	maxPages int
	count    int
}

// NewHATEOASPaginator creates a paginator capped at maxPages. A non-positive
// cap selects DefaultMaxPages.
func NewHATEOASPaginator(maxPages int) *HATEOASPaginator {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &HATEOASPaginator{maxPages: maxPages}
}

type halLinks struct {
	Links struct {
		Next struct {
			Href string `json:"href"`
		} `json:"next"`
	} `json:"_links"`
}

// Next returns the next page URL. Once the cap is reached it returns false
// without looking at the body. Otherwise the page is counted first, and a
// body that is not JSON, or has no usable next link, ends pagination.
func (p *HATEOASPaginator) Next(body []byte) (*url.URL, bool) {
	if p.count >= p.maxPages {
		return nil, false
	}
	p.count++

	var doc halLinks
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, false
	}
	href := doc.Links.Next.Href
	if href == "" {
		return nil, false
	}
	next, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	return next, true
}

// PageCount returns the number of responses consumed so far.
func (p *HATEOASPaginator) PageCount() int {
	return p.count
}

// MaxPages returns the configured cap.
func (p *HATEOASPaginator) MaxPages() int {
	return p.maxPages
}
