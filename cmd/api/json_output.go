package main

import (
	"bytes"
	"encoding/json"
	"io"
)

// writeRawJSON indents an already-encoded object without re-marshaling it
func writeRawJSON(w io.Writer, raw []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}
