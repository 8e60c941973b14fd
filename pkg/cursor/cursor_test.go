package cursor

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
	"github.com/ajitpratap0/nebula-omnivore/pkg/json"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want int64
	}{
		{"int", 1685620800, 1685620800},
		{"int64", int64(42), 42},
		{"uint32", uint32(7), 7},
		{"zero", 0, 0},
		{"json number", json.Number("1700000000"), 1700000000},
		{"integer string", "1700000000", 1700000000},
		{"negative string", "-5", -5},
		{"timestamp", "2023-06-01T12:00:00.000000Z", 1685620800},
		{"short fraction", "2023-06-01T12:00:00.5Z", 1685620800},
		{"epoch", "1970-01-01T00:00:00.000000Z", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeRejects(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
	}{
		{"nil", nil},
		{"float", 1.5},
		{"decimal number", json.Number("1.5")},
		{"bool", true},
		{"word", "yesterday"},
		{"no fraction", "2023-06-01T12:00:00Z"},
		{"offset", "2023-06-01T12:00:00.000000+02:00"},
		{"seven digits", "2023-06-01T12:00:00.0000000Z"},
		{"bad month", "2023-13-01T12:00:00.000000Z"},
		{"map", map[string]interface{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.in)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidCursor))
		})
	}
}

func TestFormatUnix(t *testing.T) {
	assert.Equal(t, "2023-06-01T12:00:00.000000Z", FormatUnix(1685620800))
	got, err := Normalize(FormatUnix(1685620800))
	require.NoError(t, err)
	assert.Equal(t, int64(1685620800), got)
}

func ExampleNormalize() {
	sec, _ := Normalize("2023-06-01T12:00:00.000000Z")
	fmt.Println(sec)
	// Output: 1685620800
}
