package streaming

import (
	"context"
	"io"
	"os/exec"

	"github.com/Laisky/errors/v2"

	"github.com/relaybridge/bedrock-gateway/internal/apierr"
)

// TranscoderPipe wires a provider byte stream through an external ffmpeg
// subprocess without buffering the whole payload, for streamed speech and
// transcription outputs whose size isn't known up front. Grounded on the
// buffered internal/media.Transcode for small bodies; this variant exists
// because spec.md §4.7 requires cooperative cancellation ("cancelling the
// consumer cancels the feeder and terminates the subprocess"), which a
// bytes.Buffer-based call can't express.
type TranscoderPipe struct {
	FromFormat string
	ToFormat   string
}

// Run starts ffmpeg, feeding src into stdin on one goroutine while the
// caller reads transcoded bytes from the returned io.ReadCloser. Closing the
// returned reader (or cancelling ctx) terminates the feeder and kills the
// subprocess. A missing ffmpeg binary surfaces as a 400-class apierr so the
// caller can report it to the client rather than a bare 500.
func (p TranscoderPipe) Run(ctx context.Context, src io.Reader) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", p.FromFormat, "-i", "pipe:0",
		"-f", p.ToFormat, "pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "open ffmpeg stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "open ffmpeg stdout")
	}

	if err := cmd.Start(); err != nil {
		return nil, apierr.InvalidRequest("audio transcoding is unavailable: " + err.Error())
	}

	go func() {
		_, _ = io.Copy(stdin, src)
		stdin.Close()
	}()

	return &pipeReader{stdout: stdout, cmd: cmd}, nil
}

// pipeReader ties the lifetime of the ffmpeg process to its stdout pipe:
// Close kills the process and reaps it with Wait, calling Wait at most once.
type pipeReader struct {
	stdout io.ReadCloser
	cmd    *exec.Cmd
	waited bool
}

func (r *pipeReader) Read(p []byte) (int, error) { return r.stdout.Read(p) }

func (r *pipeReader) Close() error {
	_ = r.stdout.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	if !r.waited {
		r.waited = true
		_ = r.cmd.Wait()
	}
	return nil
}
