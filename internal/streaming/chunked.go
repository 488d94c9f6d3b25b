package streaming

import (
	"io"

	"github.com/Laisky/errors/v2"
)

// ChunkSize is the provider-sized chunk used for binary audio responses
// (speech synthesis output), per spec.md §4.7.
const ChunkSize = 64 * 1024

// EmitChunked copies src to w in ChunkSize-sized blocks, flushing after
// every block so the client begins playback before the full body arrives.
// Used for non-SSE /v1/audio/speech responses.
func EmitChunked(w io.Writer, flush func(), src io.Reader) (bytesWritten int64, err error) {
	buf := make([]byte, ChunkSize)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			written, writeErr := w.Write(buf[:n])
			bytesWritten += int64(written)
			if writeErr != nil {
				return bytesWritten, errors.Wrap(writeErr, "write audio chunk")
			}
			if flush != nil {
				flush()
			}
		}
		if readErr == io.EOF {
			return bytesWritten, nil
		}
		if readErr != nil {
			return bytesWritten, errors.Wrap(readErr, "read audio chunk")
		}
	}
}
