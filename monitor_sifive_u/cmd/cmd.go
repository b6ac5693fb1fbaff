// Copyright (c) The GoVFM authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package cmd implements the debug console of the monitor.
package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"regexp"
	"sort"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/usbarmory/GoVFM/util"
)

// Banner is the console welcome banner.
var Banner string

// Cmd represents a console command.
type Cmd struct {
	// Name is the command name, also matched as literal when Pattern is
	// nil.
	Name string
	// Args is the number of arguments captured by Pattern.
	Args int
	// Pattern matches the command line.
	Pattern *regexp.Regexp
	// Syntax describes the command arguments.
	Syntax string
	// Help is the command description.
	Help string
	// Fn is the command handler.
	Fn func(*term.Terminal, []string) (string, error)
}

var cmds = make(map[string]*Cmd)

// ErrUnknownCommand is returned for unrecognized command lines.
var ErrUnknownCommand = errors.New("unknown command, type `help`")

// Add registers a console command.
func Add(cmd Cmd) {
	cmds[cmd.Name] = &cmd
}

// Help returns the help text of all registered commands.
func Help(_ *term.Terminal) string {
	var names []string

	for name := range cmds {
		names = append(names, name)
	}

	sort.Strings(names)

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 8, 1, ' ', 0)

	for _, name := range names {
		cmd := cmds[name]
		fmt.Fprintf(w, "%s\t%s\t # %s\n", cmd.Name, cmd.Syntax, cmd.Help)
	}

	w.Flush()

	return buf.String()
}

func (cmd *Cmd) match(line string) (args []string, ok bool) {
	if cmd.Pattern == nil {
		return nil, line == cmd.Name
	}

	m := cmd.Pattern.FindStringSubmatch(line)

	if m == nil || len(m)-1 != cmd.Args {
		return nil, false
	}

	return m[1:], true
}

// Handle executes a command line.
func Handle(term *term.Terminal, line string) (err error) {
	var cmd *Cmd
	var args []string

	for _, c := range cmds {
		var ok bool

		if args, ok = c.match(line); ok {
			cmd = c
			break
		}
	}

	if cmd == nil {
		return ErrUnknownCommand
	}

	res, err := cmd.Fn(term, args)

	if len(res) > 0 {
		fmt.Fprintln(term, res)
	}

	return
}

func console() *util.Console {
	return &util.Console{
		Banner:  Banner,
		Help:    "type `help` for the list of commands",
		Handler: Handle,
	}
}

// SerialConsole runs the console over a serial port.
func SerialConsole(rw io.ReadWriter) {
	console().Serve(rw)
}

// SSHConsole starts the console on an SSH server accepting connections
// from listener.
func SSHConsole(listener net.Listener) error {
	return console().Start(listener)
}
