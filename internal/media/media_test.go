package media

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseIP(t *testing.T, s string) net.IP {
	t.Helper()
	ip := net.ParseIP(s)
	require.NotNil(t, ip)
	return ip
}

func TestParseDataURL(t *testing.T) {
	d, err := ParseDataURL("data:image/png;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "image/png", d.MIMEType)
	assert.Equal(t, []byte("hello"), d.Bytes)
}

func TestParseDataURL_RejectsNonBase64(t *testing.T) {
	_, err := ParseDataURL("data:image/png,hello")
	assert.Error(t, err)
}

func TestParseDataURL_RejectsNonDataURL(t *testing.T) {
	_, err := ParseDataURL("https://example.com/a.png")
	assert.Error(t, err)
}

func TestParseS3URL(t *testing.T) {
	ref, err := ParseS3URL("s3://my-bucket/path/to/image.jpg")
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", ref.Bucket)
	assert.Equal(t, "path/to/image.jpg", ref.Key)
	assert.Equal(t, "jpeg", ref.Ext, "jpg must remap to jpeg per spec")
}

func TestParseS3URL_MalformedRejected(t *testing.T) {
	_, err := ParseS3URL("s3://bucket-only")
	assert.Error(t, err)

	_, err = ParseS3URL("s3:///missing-bucket")
	assert.Error(t, err)
}

func TestVideoFormatFor_Remaps(t *testing.T) {
	assert.Equal(t, "mkv", VideoFormatFor("video/x-matroska"))
	assert.Equal(t, "mov", VideoFormatFor("video/quicktime"))
	assert.Equal(t, "three_gp", VideoFormatFor("video/3gpp"))
	assert.Equal(t, "mp4", VideoFormatFor("video/mp4"), "unmapped subtypes pass through unchanged")
}

func TestSniffMIME_PNGMagicBytes(t *testing.T) {
	pngHeader := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	assert.Equal(t, "image/png", SniffMIME(pngHeader))
}

func TestIsPrivateOrLocal(t *testing.T) {
	cases := map[string]bool{
		"10.0.0.1":    true,
		"127.0.0.1":   true,
		"169.254.1.1": true,
		"8.8.8.8":     false,
		"1.1.1.1":     false,
	}
	for ip, want := range cases {
		assert.Equal(t, want, isPrivateOrLocal(parseIP(t, ip)), ip)
	}
}

func TestEncodeDecodeBase64_RoundTrip(t *testing.T) {
	original := []byte("round trip me")
	encoded := EncodeBase64(original)
	decoded, err := DecodeBase64(encoded)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}
