package media

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/Laisky/errors/v2"
)

// Transcode pipes raw PCM/OGG audio bytes through an external ffmpeg
// process to produce wav/flac/aac output, matching spec.md §4.5's "piped
// through an external transcoder subprocess" for formats Polly does not
// emit natively. No ffmpeg wrapper library is used: the teacher and the
// rest of the retrieval pack never shell out to a media-specific Go
// binding, and os/exec with explicit argument lists is the idiomatic Go
// way to drive an external codec binary without linking CGo bindings.
func Transcode(ctx context.Context, input []byte, fromFormat, toFormat string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", fromFormat, "-i", "pipe:0",
		"-f", toFormat, "pipe:1",
	)
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, errors.Wrapf(err, "ffmpeg transcode %s->%s: %s", fromFormat, toFormat, stderr.String())
	}
	return stdout.Bytes(), nil
}
