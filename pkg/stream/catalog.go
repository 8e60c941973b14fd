package stream

import (
	"sort"

	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
)

// Catalog is a validated set of stream definitions in dependency order.
type Catalog struct {
	order    []string
	defs     map[string]Definition
	children map[string][]string
}

// NewCatalog validates defs and orders them so that every parent precedes
// its children. Siblings keep their input order.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{
		defs:     make(map[string]Definition, len(defs)),
		children: make(map[string][]string),
	}

	input := make([]string, 0, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.New(errors.ErrorTypeValidation, "stream definition without a name")
		}
		if _, dup := c.defs[d.Name]; dup {
			return nil, errors.Newf(errors.ErrorTypeValidation, "duplicate stream %s", d.Name)
		}
		if d.PathTemplate == "" {
			return nil, errors.Newf(errors.ErrorTypeValidation, "stream %s has no path", d.Name)
		}
		if len(d.PrimaryKeys) == 0 {
			return nil, errors.Newf(errors.ErrorTypeValidation, "stream %s has no primary keys", d.Name)
		}
		if d.DetailPathTemplate != "" && d.ContextKey == "" {
			return nil, errors.Newf(errors.ErrorTypeValidation, "stream %s has a detail path but no context key", d.Name)
		}
		c.defs[d.Name] = d
		input = append(input, d.Name)
	}

	for _, name := range input {
		d := c.defs[name]
		if d.Parent == "" {
			continue
		}
		if _, ok := c.defs[d.Parent]; !ok {
			return nil, errors.Newf(errors.ErrorTypeValidation, "stream %s has unknown parent %s", name, d.Parent)
		}
		c.children[d.Parent] = append(c.children[d.Parent], name)
	}

	if err := c.sort(input); err != nil {
		return nil, err
	}
	if err := c.checkVariables(); err != nil {
		return nil, err
	}
	return c, nil
}

// sort orders streams depth-first from the roots and rejects cycles.
func (c *Catalog) sort(input []string) error {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(input))

	// a stream on a cycle can never be reached from a root
	var visit func(name string)
	visit = func(name string) {
		state[name] = visiting
		c.order = append(c.order, name)
		for _, child := range c.children[name] {
			if state[child] == unvisited {
				visit(child)
			}
		}
		state[name] = done
	}
	for _, name := range input {
		if c.defs[name].Parent == "" {
			visit(name)
		}
	}
	for _, name := range input {
		if state[name] == unvisited {
			return errors.Newf(errors.ErrorTypeValidation, "stream %s is not reachable from a root stream (parent cycle)", name)
		}
	}
	return nil
}

func (c *Catalog) checkVariables() error {
	for _, name := range c.order {
		d := c.defs[name]
		supplied := make(map[string]bool)
		for _, a := range c.Ancestors(name) {
			if k := c.defs[a].ContextKey; k != "" {
				supplied[k] = true
			}
		}
		for _, v := range variables(d.PathTemplate) {
			if !supplied[v] {
				return errors.Newf(errors.ErrorTypeValidation, "stream %s: path variable %s is not supplied by an ancestor", name, v)
			}
		}
		for _, v := range variables(d.DetailPathTemplate) {
			if !supplied[v] && v != d.ContextKey {
				return errors.Newf(errors.ErrorTypeValidation, "stream %s: detail path variable %s is not supplied", name, v)
			}
		}
	}
	return nil
}

// Get returns the definition named name.
func (c *Catalog) Get(name string) (Definition, bool) {
	d, ok := c.defs[name]
	return d, ok
}

// All returns every definition in dependency order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.defs[name])
	}
	return out
}

// Names returns the stream names in dependency order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Roots returns the streams without a parent.
func (c *Catalog) Roots() []Definition {
	var out []Definition
	for _, name := range c.order {
		if c.defs[name].Parent == "" {
			out = append(out, c.defs[name])
		}
	}
	return out
}

// Children returns the direct children of name.
func (c *Catalog) Children(name string) []Definition {
	out := make([]Definition, 0, len(c.children[name]))
	for _, child := range c.children[name] {
		out = append(out, c.defs[child])
	}
	return out
}

// Ancestors returns the parent chain of name, nearest first.
func (c *Catalog) Ancestors(name string) []string {
	var out []string
	for p := c.defs[name].Parent; p != ""; p = c.defs[p].Parent {
		out = append(out, p)
	}
	return out
}

// Select builds a selection from stream names. No names selects everything.
func (c *Catalog) Select(names ...string) (*Selection, error) {
	s := &Selection{
		emit:     make(map[string]bool),
		traverse: make(map[string]bool),
	}
	if len(names) == 0 {
		names = c.order
	}
	var unknown []string
	for _, name := range names {
		if _, ok := c.defs[name]; !ok {
			unknown = append(unknown, name)
			continue
		}
		s.emit[name] = true
		s.traverse[name] = true
		for _, a := range c.Ancestors(name) {
			s.traverse[a] = true
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown streams selected: %v", unknown)
	}
	return s, nil
}
