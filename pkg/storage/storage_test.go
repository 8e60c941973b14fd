package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw  string
		want Location
	}{
		{"s3://bucket/out/tickets.jsonl", Location{SchemeS3, "bucket", "out/tickets.jsonl"}},
		{"gs://bucket/prefix/", Location{SchemeGCS, "bucket", "prefix/"}},
		{"S3://bucket", Location{SchemeS3, "bucket", ""}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseURL(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseURLErrors(t *testing.T) {
	for _, raw := range []string{"https://bucket/key", "s3:///key", "/local/path"} {
		_, err := ParseURL(raw)
		require.Error(t, err, raw)
		assert.True(t, errors.IsType(err, errors.ErrorTypeConfig), raw)
	}
}

func TestResolve(t *testing.T) {
	loc := Location{Scheme: SchemeGCS, Bucket: "b", Key: "exports/"}
	assert.Equal(t, "exports/out.jsonl.gz", loc.Resolve("out.jsonl.gz").Key)

	loc = Location{Scheme: SchemeS3, Bucket: "b"}
	assert.Equal(t, "s3://b/out.jsonl", loc.Resolve("out.jsonl").String())

	loc = Location{Scheme: SchemeS3, Bucket: "b", Key: "fixed.jsonl"}
	assert.Equal(t, "fixed.jsonl", loc.Resolve("out.jsonl").Key)
}
