package stream

// Selection records which streams emit records and which are only walked to
// supply context to selected descendants.
type Selection struct {
	emit     map[string]bool
	traverse map[string]bool
}

// Emits reports whether records of name reach the sink.
func (s *Selection) Emits(name string) bool {
	return s.emit[name]
}

// Traverses reports whether name has to be requested at all.
func (s *Selection) Traverses(name string) bool {
	return s.traverse[name]
}

// Len returns the number of emitting streams.
func (s *Selection) Len() int {
	return len(s.emit)
}
