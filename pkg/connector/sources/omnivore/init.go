package omnivore

import (
	"github.com/ajitpratap0/nebula-omnivore/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterSource(Name, NewSource)
}
