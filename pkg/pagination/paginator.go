// Package pagination decides whether another page should be requested after
// a response has been read.
package pagination

import "net/url"

// Paginator yields the URL of the next page, if any.
type Paginator interface {
	// Next inspects a response body and returns the next page URL.
	Next(body []byte) (*url.URL, bool)
	// PageCount returns how many times Next has consumed a response.
	PageCount() int
}
