package streaming

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceSource struct {
	frames []Frame
	i      int
}

func (s *sliceSource) Next(ctx context.Context) (Frame, bool, error) {
	if s.i >= len(s.frames) {
		return Frame{}, false, nil
	}
	f := s.frames[s.i]
	s.i++
	return f, true, nil
}

func TestEmitSSE_WritesFramesAndDoneSentinel(t *testing.T) {
	src := &sliceSource{frames: []Frame{
		{Data: json.RawMessage(`{"a":1}`)},
		{Data: json.RawMessage(`{"a":2}`)},
	}}
	var buf bytes.Buffer
	chunks, n, err := EmitSSE(context.Background(), &buf, nil, src, true)
	require.NoError(t, err)
	assert.Equal(t, 2, chunks)
	assert.Greater(t, n, int64(0))
	out := buf.String()
	assert.True(t, strings.Contains(out, `data: {"a":1}`))
	assert.True(t, strings.Contains(out, `data: {"a":2}`))
	assert.True(t, strings.HasSuffix(out, "data: [DONE]\n\n"))
}

func TestEmitSSE_NoTerminalForNonChatEndpoints(t *testing.T) {
	src := &sliceSource{frames: []Frame{{Data: json.RawMessage(`{"a":1}`)}}}
	var buf bytes.Buffer
	_, _, err := EmitSSE(context.Background(), &buf, nil, src, false)
	require.NoError(t, err)
	assert.False(t, strings.Contains(buf.String(), "[DONE]"))
}

func TestEmitSSE_StopsOnDoneFrame(t *testing.T) {
	src := &sliceSource{frames: []Frame{
		{Data: json.RawMessage(`{"a":1}`), Done: true},
		{Data: json.RawMessage(`{"a":2}`)},
	}}
	var buf bytes.Buffer
	chunks, _, err := EmitSSE(context.Background(), &buf, nil, src, false)
	require.NoError(t, err)
	assert.Equal(t, 1, chunks)
}

func TestEmitChunked_WritesAllBytes(t *testing.T) {
	data := bytes.Repeat([]byte("x"), ChunkSize*2+10)
	var buf bytes.Buffer
	n, err := EmitChunked(&buf, nil, bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, buf.Bytes())
}

func TestChanSource_ReturnsErrorFromErrChannel(t *testing.T) {
	errs := make(chan error, 1)
	errs <- assert.AnError
	close(errs)
	frames := make(chan Frame)
	close(frames)
	src := ChanSource{Frames: frames, Errs: errs}
	_, ok, err := src.Next(context.Background())
	assert.False(t, ok)
	assert.Error(t, err)
}
