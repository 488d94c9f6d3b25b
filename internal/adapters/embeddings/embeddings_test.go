package embeddings

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyBytes_DetectsImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	item := classifyBytes(png, "image/png")
	assert.Equal(t, KindImage, item.Kind)
}

func TestClassifyBytes_FallsBackToText(t *testing.T) {
	item := classifyBytes([]byte("hello"), "text/plain")
	assert.Equal(t, KindText, item.Kind)
}

func TestExceedsSyncLimit_Text(t *testing.T) {
	big := Item{Kind: KindText, Text: strings.Repeat("a", MaxSyncTextChars+1)}
	assert.True(t, exceedsSyncLimit(big, false))

	small := Item{Kind: KindText, Text: "hi"}
	assert.False(t, exceedsSyncLimit(small, false))
}

func TestExceedsSyncLimit_ForceS3(t *testing.T) {
	small := Item{Kind: KindText, Text: "hi"}
	assert.True(t, exceedsSyncLimit(small, true))
}

func TestExceedsSyncLimit_S3AlwaysAsync(t *testing.T) {
	item := Item{Kind: KindS3}
	assert.True(t, exceedsSyncLimit(item, false))
}

func TestDecodeInputs_SingleString(t *testing.T) {
	items, err := decodeInputs(json.RawMessage(`"hello"`))
	require.NoError(t, err)
	assert.Equal(t, []string{"hello"}, items)
}

func TestDecodeInputs_List(t *testing.T) {
	items, err := decodeInputs(json.RawMessage(`["a","b"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, items)
}

func TestDecodeInputs_RejectsInvalid(t *testing.T) {
	_, err := decodeInputs(json.RawMessage(`123`))
	assert.Error(t, err)
}

func TestSplitS3URI(t *testing.T) {
	bucket, key, err := splitS3URI("s3://my-bucket/a/b/c.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", bucket)
	assert.Equal(t, "a/b/c.jsonl", key)
}

func TestSplitS3URI_RejectsNonS3(t *testing.T) {
	_, _, err := splitS3URI("https://example.com/a")
	assert.Error(t, err)
}
