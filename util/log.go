// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

import (
	"bytes"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

var (
	mu             sync.Mutex
	firmwareOutput bytes.Buffer
	payloadOutput  bytes.Buffer
)

const outputLimit = 1024
const flushChr = 0x0a // \n

func output(firmware bool) *bytes.Buffer {
	if firmware {
		return &firmwareOutput
	}

	return &payloadOutput
}

// BufferedLog buffers the guest log output of each world, complete lines
// are written to w.
func BufferedLog(w io.Writer, c byte, firmware bool) {
	mu.Lock()
	defer mu.Unlock()

	buf := output(firmware)
	buf.WriteByte(c)

	if c == flushChr || buf.Len() > outputLimit {
		w.Write(buf.Bytes())
		buf.Reset()
	}
}

func BufferedStdoutLog(c byte, firmware bool) {
	BufferedLog(os.Stdout, c, firmware)
}

func BufferedTermLog(c byte, firmware bool, t *term.Terminal) {
	var color []byte

	mu.Lock()
	defer mu.Unlock()

	buf := output(firmware)

	if firmware {
		color = t.Escape.Green
	} else {
		color = t.Escape.Red
	}

	buf.WriteByte(c)

	if c == flushChr || buf.Len() > outputLimit {
		t.Write(color)
		t.Write(buf.Bytes())
		t.Write(t.Escape.Reset)

		buf.Reset()
	}
}
