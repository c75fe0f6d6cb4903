// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

// Package sse encodes Server-Sent Events frames.
package sse

import (
	"bytes"
	"io"

	"github.com/daniprol/bolt-events/internal/pool"
)

// Frame is a single Server-Sent Events message. ID becomes the browser's
// Last-Event-ID on reconnect, so it must be the resumption token of the
// entry it carries.
type Frame struct {
	ID    string
	Event string
	Data  []byte
}

// Encode renders the frame in wire format: optional id: and event: lines,
// one data: line per payload line, then the blank line terminator.
func Encode(f Frame) []byte {
	buf := pool.Bytes.Get()
	defer pool.Bytes.Put(buf)

	if f.ID != "" {
		buf.WriteString("id: ")
		buf.WriteString(f.ID)
		buf.WriteByte('\n')
	}
	if f.Event != "" {
		buf.WriteString("event: ")
		buf.WriteString(f.Event)
		buf.WriteByte('\n')
	}

	// A payload with embedded newlines must be split so no raw newline
	// appears inside a data: line.
	data := f.Data
	for {
		line := data
		if i := bytes.IndexByte(data, '\n'); i >= 0 {
			line, data = data[:i], data[i+1:]
		} else {
			data = nil
		}
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
		if data == nil {
			break
		}
	}

	buf.WriteByte('\n')

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

// Write encodes the frame and writes it to w.
func Write(w io.Writer, f Frame) error {
	_, err := w.Write(Encode(f))
	return err
}
