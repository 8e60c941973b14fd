package json

import (
	"github.com/ajitpratap0/nebula-omnivore/pkg/connector/registry"
)

func init() {
	_ = registry.RegisterDestination("json", NewJSONDestination)
}
