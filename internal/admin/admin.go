// Package admin implements the Interrupt/Admin Handler (spec.md §4.G): a
// line-oriented operator menu read from stdin, grounded on the teacher's
// kissutil.go stdin-scanning loop, that asks the control-protocol server
// to act between frames rather than reaching into its state directly.
package admin

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/qosst-go/alice-core/internal/config"
	"github.com/qosst-go/alice-core/internal/protocol"
)

// Sender is the subset of *protocol.Server the menu needs: a channel to
// post AdminRequests on. The server only drains this channel between
// frames (spec.md §5), so a request made mid-frame simply waits.
type Sender interface {
	AdminChannel() chan<- protocol.AdminRequest
}

// Menu reads operator commands from in and dispatches them to a Server.
type Menu struct {
	in     *bufio.Scanner
	out    io.Writer
	server Sender
	reload func() (*config.Config, error)
	logger *log.Logger
}

// NewMenu constructs a Menu. reload is called for the "reload configuration"
// action; it should re-read the same path the process started with.
func NewMenu(in io.Reader, out io.Writer, server Sender, reload func() (*config.Config, error), logger *log.Logger) *Menu {
	return &Menu{
		in:     bufio.NewScanner(in),
		out:    out,
		server: server,
		reload: reload,
		logger: logger,
	}
}

const help = `
Alice control station operator menu:
  p  print current configuration
  r  reload configuration from disk
  z  reset server state
  q  stop the server gracefully
  h  show this menu
`

// Run blocks reading lines from stdin until ctx is cancelled or the input
// stream ends, dispatching one AdminRequest per recognized command. It
// never touches the server's ServerState directly: every action is
// serialized through the AdminRequest channel so the server only applies
// it between frames (spec.md §4.G, §5).
func (m *Menu) Run(ctx context.Context) {
	fmt.Fprint(m.out, help)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for m.in.Scan() {
			lines <- m.in.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if m.dispatch(ctx, strings.TrimSpace(line)) {
				return
			}
		}
	}
}

// dispatch handles one operator command line and reports whether the menu
// (and, by extension, the server) should stop.
func (m *Menu) dispatch(ctx context.Context, line string) (stop bool) {
	switch line {
	case "":
		return false
	case "h", "help":
		fmt.Fprint(m.out, help)
		return false
	case "p", "print":
		return m.send(ctx, protocol.AdminRequest{Action: protocol.AdminPrintConfig})
	case "r", "reload":
		return m.send(ctx, protocol.AdminRequest{Action: protocol.AdminReloadConfig, Reload: m.reload})
	case "z", "reset":
		return m.send(ctx, protocol.AdminRequest{Action: protocol.AdminReset})
	case "q", "quit", "stop":
		return m.send(ctx, protocol.AdminRequest{Action: protocol.AdminStop})
	default:
		fmt.Fprintf(m.out, "unrecognized command %q; type h for help\n", line)
		return false
	}
}

// send posts req to the server and waits for its result, reporting it to
// the operator. It returns true only when the server has stopped.
func (m *Menu) send(ctx context.Context, req protocol.AdminRequest) bool {
	req.Done = make(chan protocol.AdminResult, 1)
	select {
	case m.server.AdminChannel() <- req:
	case <-ctx.Done():
		return false
	}

	select {
	case res := <-req.Done:
		m.report(req.Action, res)
		return res.Stopped
	case <-ctx.Done():
		return false
	}
}

func (m *Menu) report(action protocol.AdminAction, res protocol.AdminResult) {
	switch action {
	case protocol.AdminPrintConfig:
		fmt.Fprintf(m.out, "%+v\n", res.Config)
	case protocol.AdminReloadConfig:
		switch {
		case res.Refused:
			fmt.Fprintln(m.out, "reload refused: a frame is in progress")
		case res.Err != nil:
			fmt.Fprintf(m.out, "reload failed: %v\n", res.Err)
		default:
			fmt.Fprintln(m.out, "configuration reloaded")
		}
	case protocol.AdminReset:
		fmt.Fprintln(m.out, "server state reset")
	case protocol.AdminStop:
		fmt.Fprintln(m.out, "stopping")
	}
}
