// Package stream describes extractable resources and how they depend on each
// other. Definitions form a DAG rooted at streams without a parent; every
// path variable of a stream is supplied by an ancestor's context key.
package stream

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
)

var templateVar = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Definition is the static descriptor of one stream.
type Definition struct {
	Name           string   `json:"name" yaml:"name"`
	PathTemplate   string   `json:"path" yaml:"path"`
	PrimaryKeys    []string `json:"primary_keys" yaml:"primary_keys"`
	ReplicationKey string   `json:"replication_key,omitempty" yaml:"replication_key,omitempty"`
	Parent         string   `json:"parent,omitempty" yaml:"parent,omitempty"`

	// ContextKey is the variable under which each emitted record's id is
	// handed to child streams.
	ContextKey string `json:"context_key,omitempty" yaml:"context_key,omitempty"`

	// DetailPathTemplate and FilterKey enable filtered runs: when the
	// configuration lists ids under FilterKey, the stream issues one run
	// per id against DetailPathTemplate with ContextKey set to that id.
	DetailPathTemplate string `json:"detail_path,omitempty" yaml:"detail_path,omitempty"`
	FilterKey          string `json:"filter_key,omitempty" yaml:"filter_key,omitempty"`
}

// Incremental reports whether the stream has a replication key.
func (d Definition) Incremental() bool {
	return d.ReplicationKey != ""
}

// Path renders the path template with values from ctx.
func (d Definition) Path(ctx Context) (string, error) {
	return render(d.Name, d.PathTemplate, ctx)
}

// DetailPath renders the detail path template with values from ctx.
func (d Definition) DetailPath(ctx Context) (string, error) {
	if d.DetailPathTemplate == "" {
		return "", errors.Newf(errors.ErrorTypeValidation, "stream %s has no detail path", d.Name)
	}
	return render(d.Name, d.DetailPathTemplate, ctx)
}

// Variables returns the template variables referenced by the list path.
func (d Definition) Variables() []string {
	return variables(d.PathTemplate)
}

func variables(template string) []string {
	matches := templateVar.FindAllStringSubmatch(template, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func render(name, template string, ctx Context) (string, error) {
	var missing []string
	path := templateVar.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := ctx.Get(key)
		if !ok || v == "" {
			missing = append(missing, key)
			return m
		}
		return url.PathEscape(v)
	})
	if len(missing) > 0 {
		return "", errors.Newf(errors.ErrorTypeValidation, "stream %s: context is missing %s", name, strings.Join(missing, ", "))
	}
	return path, nil
}
