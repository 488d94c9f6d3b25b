package transcription

import (
	"bytes"
	"fmt"
)

func bytesReader(data []byte) *bytes.Reader {
	return bytes.NewReader(data)
}

func fmtSscan(s string, v *float64) (int, error) {
	return fmt.Sscanf(s, "%g", v)
}
