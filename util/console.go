// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

import (
	"fmt"
	"io"
	"log"

	"golang.org/x/term"
)

// Console represents a command console instance.
type Console struct {
	// Banner is the login welcome banner
	Banner string
	// Help is the `help` command output
	Help string
	// Handler is the terminal command handler
	Handler func(*term.Terminal, string) error
}

// Serve runs a console session over rw, it returns once the input is
// closed or the handler returns io.EOF.
func (c *Console) Serve(rw io.ReadWriter) {
	c.serve(NewTerminal(rw))
}

// NewTerminal returns a terminal with the console prompt.
func NewTerminal(rw io.ReadWriter) (t *term.Terminal) {
	t = term.NewTerminal(rw, "")
	t.SetPrompt(string(t.Escape.Red) + "> " + string(t.Escape.Reset))

	return
}

func (c *Console) serve(t *term.Terminal) {
	fmt.Fprintf(t, "%s\n", c.Banner)

	if len(c.Help) > 0 {
		fmt.Fprintf(t, "%s\n", string(t.Escape.Cyan)+c.Help+string(t.Escape.Reset))
	}

	for {
		cmd, err := t.ReadLine()

		if err == io.EOF {
			break
		}

		if err != nil {
			log.Printf("readline error: %v", err)
			continue
		}

		err = c.Handler(t, cmd)

		if err == io.EOF {
			break
		}

		if err != nil {
			log.Printf("error: %v", err)
		}
	}
}
