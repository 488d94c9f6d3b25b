// Package streaming implements C11: the SSE emitter for Chat Completions
// streaming, the chunked binary responder for raw audio, and the
// transcoder pipe that feeds provider bytes through an external ffmpeg
// subprocess. Grounded on the teacher's gin streaming handlers
// (relay/controller's use of c.Stream / c.Writer.Flush for SSE), generalized
// here to an explicit, gin-independent writer so internal/httpapi can wire
// it without depending on chat-specific types.
package streaming

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/Laisky/errors/v2"
)

// Frame is one SSE event body; Done marks the synthetic terminal frame.
type Frame struct {
	Data json.RawMessage
	Done bool
}

// Source produces frames until it is exhausted or ctx is cancelled. nil,
// false signals end of stream.
type Source interface {
	Next(ctx context.Context) (Frame, bool, error)
}

// ChanSource adapts a channel of already-marshaled frames into a Source,
// the shape internal/chat's InvokeNStream output is merged into before
// reaching this package.
type ChanSource struct {
	Frames <-chan Frame
	Errs   <-chan error
}

func (s ChanSource) Next(ctx context.Context) (Frame, bool, error) {
	select {
	case <-ctx.Done():
		return Frame{}, false, ctx.Err()
	case err, ok := <-s.Errs:
		if ok && err != nil {
			return Frame{}, false, err
		}
	default:
	}
	select {
	case <-ctx.Done():
		return Frame{}, false, ctx.Err()
	case f, ok := <-s.Frames:
		if !ok {
			return Frame{}, false, nil
		}
		return f, true, nil
	}
}

// EmitSSE writes frames from src to w as `data: <json>\n\n` events,
// flushing after every frame so clients see incremental progress. When
// terminal is true, a final `data: [DONE]\n\n` sentinel is written once the
// source is exhausted, per spec.md §4.7 ("the [DONE] sentinel line is
// emitted only for Chat Completions streaming; no other endpoint emits a
// terminal event"). Returns the number of frames and bytes written, for the
// request_stream log event.
func EmitSSE(ctx context.Context, w io.Writer, flush func(), src Source, terminal bool) (chunks int, bytesWritten int64, err error) {
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	for {
		frame, ok, nextErr := src.Next(ctx)
		if nextErr != nil {
			return chunks, bytesWritten, nextErr
		}
		if !ok {
			break
		}
		n, writeErr := writeSSELine(bw, frame.Data)
		bytesWritten += int64(n)
		if writeErr != nil {
			return chunks, bytesWritten, writeErr
		}
		chunks++
		if err := bw.Flush(); err != nil {
			return chunks, bytesWritten, err
		}
		if flush != nil {
			flush()
		}
		if frame.Done {
			break
		}
	}

	if terminal {
		n, writeErr := bw.WriteString("data: [DONE]\n\n")
		bytesWritten += int64(n)
		if writeErr != nil {
			return chunks, bytesWritten, writeErr
		}
		if err := bw.Flush(); err != nil {
			return chunks, bytesWritten, err
		}
		if flush != nil {
			flush()
		}
	}

	return chunks, bytesWritten, nil
}

func writeSSELine(w *bufio.Writer, data json.RawMessage) (int, error) {
	total := 0
	n, err := w.WriteString("data: ")
	total += n
	if err != nil {
		return total, errors.Wrap(err, "write sse prefix")
	}
	n, err = w.Write(data)
	total += n
	if err != nil {
		return total, errors.Wrap(err, "write sse data")
	}
	n, err = w.WriteString("\n\n")
	total += n
	return total, err
}
