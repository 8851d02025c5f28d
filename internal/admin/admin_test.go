package admin

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qosst-go/alice-core/internal/config"
	"github.com/qosst-go/alice-core/internal/protocol"
)

// fakeSender answers every AdminRequest immediately with a canned result,
// recording the actions it saw.
type fakeSender struct {
	ch      chan protocol.AdminRequest
	seen    []protocol.AdminAction
	results map[protocol.AdminAction]protocol.AdminResult
}

func newFakeSender() *fakeSender {
	f := &fakeSender{
		ch:      make(chan protocol.AdminRequest),
		results: map[protocol.AdminAction]protocol.AdminResult{},
	}
	go func() {
		for req := range f.ch {
			f.seen = append(f.seen, req.Action)
			res := f.results[req.Action]
			if req.Done != nil {
				req.Done <- res
			}
		}
	}()
	return f
}

func (f *fakeSender) AdminChannel() chan<- protocol.AdminRequest { return f.ch }

func TestMenuDispatchesPrintAndReload(t *testing.T) {
	sender := newFakeSender()
	sender.results[protocol.AdminPrintConfig] = protocol.AdminResult{Config: &config.Config{}}

	var out bytes.Buffer
	in := strings.NewReader("p\nr\n")
	menu := NewMenu(in, &out, sender, func() (*config.Config, error) { return &config.Config{}, nil }, log.NewWithOptions(io.Discard, log.Options{}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	menu.Run(ctx)

	assert.Contains(t, sender.seen, protocol.AdminPrintConfig)
	assert.Contains(t, sender.seen, protocol.AdminReloadConfig)
}

func TestMenuStopsOnQuit(t *testing.T) {
	sender := newFakeSender()
	sender.results[protocol.AdminStop] = protocol.AdminResult{Stopped: true}

	var out bytes.Buffer
	in := strings.NewReader("q\n")
	menu := NewMenu(in, &out, sender, nil, log.NewWithOptions(io.Discard, log.Options{}))

	done := make(chan struct{})
	go func() {
		menu.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("menu did not stop after quit command")
	}
	assert.Equal(t, []protocol.AdminAction{protocol.AdminStop}, sender.seen)
}

func TestMenuReportsUnrecognizedCommand(t *testing.T) {
	sender := newFakeSender()
	var out bytes.Buffer
	in := strings.NewReader("bogus\n")
	menu := NewMenu(in, &out, sender, nil, log.NewWithOptions(io.Discard, log.Options{}))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	menu.Run(ctx)

	require.Contains(t, out.String(), "unrecognized command")
}
