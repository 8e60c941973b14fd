package hal

import (
	"sort"
	"strconv"
)

// Separator joins parent and child keys in flattened output.
const Separator = "_"

// Flatten collapses nested objects and arrays into a single-level map.
// Nested object fields become parent_child and array elements become
// parent_i. Objects and arrays held under _links, _embedded or self are
// not expanded and do not appear in the output.
//
// Keys are visited in lexical order and a later key overwrites an earlier
// one that flattened to the same name, so {"a": {"b": 2}, "a_b": 1} always
// yields a_b = 1.
func Flatten(record map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(record))
	flattenInto(out, "", record)
	return out
}

func flattenInto(out map[string]interface{}, prefix string, m map[string]interface{}) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := m[k]
		key := k
		if prefix != "" {
			key = prefix + Separator + k
		}

		switch x := v.(type) {
		case map[string]interface{}:
			if isReserved(k) {
				continue
			}
			flattenInto(out, key, x)
		case []interface{}:
			if isReserved(k) {
				continue
			}
			for i, item := range x {
				itemKey := key + Separator + strconv.Itoa(i)
				if nested, ok := item.(map[string]interface{}); ok {
					flattenInto(out, itemKey, nested)
					continue
				}
				out[itemKey] = item
			}
		default:
			out[key] = v
		}
	}
}

func isReserved(key string) bool {
	return key == LinksKey || key == EmbeddedKey || key == SelfKey
}
