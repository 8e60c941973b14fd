package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveRelations(t *testing.T) {
	record := map[string]interface{}{
		"id": "t1",
		"_links": map[string]interface{}{
			"self":           map[string]interface{}{"href": "https://api.omnivore.io/1.0/locations/L1/tickets/t1/"},
			"employee":       map[string]interface{}{"href": "https://api.omnivore.io/1.0/locations/T6EaXqEc/employees/200/"},
			"order_type":     map[string]interface{}{"href": "https://api.omnivore.io/1.0/locations/L1/order_types/3"},
			"items":          map[string]interface{}{"href": "https://api.omnivore.io/1.0/locations/L1/tickets/t1/items/"},
			"revenue_center": map[string]interface{}{"type": "application/json"},
			"table":          "not-a-link",
		},
	}

	ResolveRelations(record)

	assert.Equal(t, "200", record["employee_id"])
	assert.Equal(t, "3", record["order_type_id"])
	assert.NotContains(t, record, "self_id")
	assert.NotContains(t, record, "items_id")
	assert.NotContains(t, record, "revenue_center_id")
	assert.NotContains(t, record, "table_id")
	assert.Contains(t, record, "_links")
}

func TestResolveRelationsWithoutLinks(t *testing.T) {
	record := map[string]interface{}{"id": "1"}
	ResolveRelations(record)
	assert.Equal(t, map[string]interface{}{"id": "1"}, record)
}

func TestIDFromHref(t *testing.T) {
	tests := map[string]string{
		"https://api.omnivore.io/1.0/locations/T6EaXqEc/employees/200/": "200",
		"https://api.omnivore.io/1.0/locations/abc":                     "abc",
		"/relative/path//":                        "path",
		"https://api.omnivore.io/":                "",
		"https://api.omnivore.io/x/9?expand=true": "9",
	}
	for href, want := range tests {
		t.Run(href, func(t *testing.T) {
			assert.Equal(t, want, IDFromHref(href))
		})
	}
}

func TestIsSingular(t *testing.T) {
	assert.True(t, IsSingular("employee"))
	assert.False(t, IsSingular("self"))
	assert.False(t, IsSingular("items"))
	// plural detection is purely lexical
	assert.False(t, IsSingular("status"))
}
