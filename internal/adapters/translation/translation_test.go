package translation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSpans_UnwrapsSegmentsByIndex(t *testing.T) {
	html := `<span id="seg0">Hola</span><span id="seg1">Mundo</span>`
	segs := parseSpans(html, 2)
	assert.Equal(t, []string{"Hola", "Mundo"}, segs)
}

func TestEscapeUnescapeHTML_RoundTrip(t *testing.T) {
	raw := `<tag> & "quoted"`
	escaped := escapeHTML(raw)
	assert.NotContains(t, escaped, "<tag>")
	assert.Equal(t, raw, unescapeHTML(escaped))
}

func TestSubtitleCueBody_MatchesSRTCue(t *testing.T) {
	srt := "1\n00:00:00,000 --> 00:00:02,000\nHello there\n\n2\n00:00:02,000 --> 00:00:04,000\nGoodbye\n"
	matches := subtitleCueBody.FindAllStringSubmatchIndex(srt, -1)
	assert.Len(t, matches, 2)
}
