package asyncjob

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketResolver_PrefersRegionalBucket(t *testing.T) {
	r := BucketResolver{RegionalBuckets: map[string]string{"us-east-1": "east-bucket"}, PrimaryBucket: "default-bucket"}
	b, err := r.Resolve("us-east-1")
	require.NoError(t, err)
	assert.Equal(t, "east-bucket", b)
}

func TestBucketResolver_FallsBackToPrimary(t *testing.T) {
	r := BucketResolver{PrimaryBucket: "default-bucket"}
	b, err := r.Resolve("eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "default-bucket", b)
}

func TestBucketResolver_ErrorsWhenNeitherConfigured(t *testing.T) {
	r := BucketResolver{}
	_, err := r.Resolve("us-east-1")
	assert.Error(t, err)
}

func TestKeyFromS3URI(t *testing.T) {
	assert.Equal(t, "req-123/output", keyFromS3URI("s3://my-bucket/req-123/output"))
	assert.Equal(t, "", keyFromS3URI("s3://my-bucket"))
}

func TestJSONDocument_MarshalsPayload(t *testing.T) {
	doc := jsonDocument{v: map[string]any{"a": 1}}
	raw, err := doc.MarshalSmithyDocument()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))
}
