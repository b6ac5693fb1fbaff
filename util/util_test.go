// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

import (
	"bytes"
	"debug/elf"
	"io"
	"log"
	"net"
	"os"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/term"
)

type pipe struct {
	io.Reader
	io.Writer
}

func logString(w io.Writer, firmware bool, s string) {
	for _, c := range []byte(s) {
		BufferedLog(w, c, firmware)
	}
}

func TestBufferedLog(t *testing.T) {
	var out bytes.Buffer

	logString(&out, true, "[INFO  firmware] boot")
	assert.Zero(t, out.Len())

	// worlds are buffered independently
	logString(&out, false, "[INFO  payload] hello\n")
	assert.Equal(t, "[INFO  payload] hello\n", out.String())

	logString(&out, true, "\n")
	assert.Equal(t, "[INFO  payload] hello\n[INFO  firmware] boot\n", out.String())

	out.Reset()
	logString(&out, false, strings.Repeat("x", outputLimit+1))
	assert.Equal(t, outputLimit+1, out.Len())
}

func TestBufferedTermLog(t *testing.T) {
	var out bytes.Buffer

	tt := term.NewTerminal(pipe{Reader: &bytes.Buffer{}, Writer: &out}, "")

	for _, c := range []byte("hi\n") {
		BufferedTermLog(c, true, tt)
	}

	assert.True(t, bytes.HasPrefix(out.Bytes(), tt.Escape.Green))
	assert.Contains(t, out.String(), "hi")
	assert.True(t, bytes.HasSuffix(out.Bytes(), tt.Escape.Reset))
}

func echoHandler(t *term.Terminal, line string) error {
	switch line {
	case "exit":
		return io.EOF
	case "ping":
		_, err := t.Write([]byte("pong\n"))
		return err
	}

	return nil
}

func TestConsoleServe(t *testing.T) {
	var out bytes.Buffer

	var lines []string

	c := &Console{
		Banner: "banner",
		Help:   "help text",
		Handler: func(t *term.Terminal, line string) error {
			lines = append(lines, line)
			return echoHandler(t, line)
		},
	}

	c.Serve(pipe{Reader: strings.NewReader("ping\rexit\rignored\r"), Writer: &out})

	assert.Equal(t, []string{"ping", "exit"}, lines)
	assert.Contains(t, out.String(), "banner")
	assert.Contains(t, out.String(), "help text")
	assert.Contains(t, out.String(), "pong")
}

func TestConsoleEOF(t *testing.T) {
	c := &Console{
		Handler: func(*term.Terminal, string) error {
			t.Fatal("unexpected command")
			return nil
		},
	}

	c.Serve(pipe{Reader: strings.NewReader(""), Writer: io.Discard})
}

func TestSSHConsole(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	c := &Console{Banner: "ssh banner", Handler: echoHandler}
	require.NoError(t, c.Start(listener))

	client, err := ssh.Dial("tcp", listener.Addr().String(), &ssh.ClientConfig{
		User:            "test",
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	})
	require.NoError(t, err)
	defer client.Close()

	session, err := client.NewSession()
	require.NoError(t, err)
	defer session.Close()

	var out bytes.Buffer

	session.Stdin = strings.NewReader("ping\rexit\r")
	session.Stdout = &out

	require.NoError(t, session.Shell())

	// the server closes the channel without exit status
	_ = session.Wait()

	assert.Contains(t, out.String(), "ssh banner")
	assert.Contains(t, out.String(), "pong")
}

func TestLookupSym(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("ELF executable required")
	}

	exe, err := os.Executable()
	require.NoError(t, err)

	buf, err := os.ReadFile(exe)
	require.NoError(t, err)

	f, err := elf.NewFile(bytes.NewReader(buf))
	require.NoError(t, err)

	if f.Section(".symtab") == nil {
		t.Skip("test executable without symbol table")
	}

	sym, err := LookupSym(buf, "runtime.main")
	require.NoError(t, err)
	assert.NotZero(t, sym.Value)

	_, err = LookupSym(buf, "no.such.symbol")
	assert.Error(t, err)

	// position independent executables are not resolved
	if line, err := PCToLine(buf, sym.Value); err == nil {
		assert.Contains(t, line, "runtime.main")
	}
}

func TestLookupSymInvalid(t *testing.T) {
	_, err := LookupSym([]byte("not an ELF"), "runtime.main")
	assert.Error(t, err)

	_, err = PCToLine([]byte("not an ELF"), 0x1000)
	assert.Error(t, err)

	_, err = PCToLine(nil, 0x1000)
	assert.Error(t, err)
}

type syncBuffer struct {
	sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.Lock()
	defer b.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.Lock()
	defer b.Unlock()
	return b.buf.String()
}

func TestSSHConsoleClose(t *testing.T) {
	var out syncBuffer

	prev := log.Writer()
	log.SetOutput(&out)
	defer log.SetOutput(prev)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	c := &Console{Handler: echoHandler}
	require.NoError(t, c.Start(listener))
	require.NoError(t, listener.Close())

	time.Sleep(50 * time.Millisecond)

	assert.NotContains(t, out.String(), "error accepting connection")
}
