package hal

import (
	"bytes"

	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
	"github.com/ajitpratap0/nebula-omnivore/pkg/json"
)

// ExtractRecords returns the records carried by a response body.
//
// When the body has a non-empty _embedded object the collection under the
// key equal to resource is used, otherwise the first key in document order.
// A body without _embedded is read as a bare array of records, or as a single
// record when it is an object (detail endpoints). An empty _embedded yields
// no records. Numbers are kept as json.Number.
func ExtractRecords(body []byte, resource string) ([]map[string]interface{}, error) {
	var root interface{}
	if err := json.Decode(body, &root); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeMalformedResponse, "failed to decode response body")
	}

	switch doc := root.(type) {
	case []interface{}:
		return objects(doc), nil
	case map[string]interface{}:
		raw, present := doc[EmbeddedKey]
		if !present {
			return []map[string]interface{}{doc}, nil
		}
		embedded, ok := raw.(map[string]interface{})
		if !ok || len(embedded) == 0 {
			return nil, nil
		}
		if v, ok := embedded[resource]; ok {
			return collection(v), nil
		}
		key, err := firstEmbeddedKey(body)
		if err != nil {
			return nil, err
		}
		return collection(embedded[key]), nil
	default:
		return nil, nil
	}
}

func collection(v interface{}) []map[string]interface{} {
	switch x := v.(type) {
	case []interface{}:
		return objects(x)
	case map[string]interface{}:
		return []map[string]interface{}{x}
	default:
		return nil
	}
}

func objects(items []interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

// firstEmbeddedKey scans the _embedded object token by token because a
// decoded map loses member order.
func firstEmbeddedKey(body []byte) (string, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeMalformedResponse, "failed to decode response body")
	}

	dec := json.NewDecoder(bytes.NewReader(top[EmbeddedKey]))
	tok, err := dec.Token()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeMalformedResponse, "failed to scan _embedded")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return "", errors.New(errors.ErrorTypeMalformedResponse, "_embedded is not an object")
	}
	tok, err = dec.Token()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeMalformedResponse, "failed to scan _embedded")
	}
	key, ok := tok.(string)
	if !ok {
		return "", errors.New(errors.ErrorTypeMalformedResponse, "_embedded has no members")
	}
	return key, nil
}
