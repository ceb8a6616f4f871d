package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/eventify/internal/client"
	"github.com/alfredjeanlab/eventify/internal/listing"
	"github.com/alfredjeanlab/eventify/internal/model"
	"github.com/alfredjeanlab/eventify/internal/screens"
	"github.com/alfredjeanlab/eventify/internal/ui"
)

var browseCmd = &cobra.Command{
	Use:     "browse <screen>",
	Short:   "Browse a screen interactively",
	GroupID: "views",
	Long:    browseHelp,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cfg, prof, logger)
		if err != nil {
			return err
		}
		defer s.Close()
		return runBrowse(cmd.Context(), os.Stdin, cmd.OutOrStdout(), s, args[0])
	},
}

const browseHelp = `Opens a screen and reads commands from stdin:

  /text        search for text ("/" alone clears the search)
  f key=value  set a filter (empty value clears it)
  n, p         next or previous page
  g N          go to page N
  r            refresh now
  reset        clear every filter
  open NAME    switch to another screen (screens stay open until idle)
  ls           list open screens
  hist         show recent requests of this screen
  q            quit

Typing is debounced like the web app: the page is fetched once you pause.
Changes announced on the event bus refresh the page.`

// browseCommand is one parsed line of browse input.
type browseCommand struct {
	op    string // search, filter, next, prev, goto, refresh, reset, open, list, history, quit, help
	key   string
	value string
	page  int
}

func parseBrowseCommand(line string) (browseCommand, error) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "/") {
		return browseCommand{op: "search", key: "search", value: strings.TrimSpace(line[1:])}, nil
	}
	word, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch word {
	case "n", "next":
		return browseCommand{op: "next"}, nil
	case "p", "prev":
		return browseCommand{op: "prev"}, nil
	case "r", "refresh":
		return browseCommand{op: "refresh"}, nil
	case "reset":
		return browseCommand{op: "reset"}, nil
	case "ls":
		return browseCommand{op: "list"}, nil
	case "hist", "history":
		return browseCommand{op: "history"}, nil
	case "q", "quit", "exit":
		return browseCommand{op: "quit"}, nil
	case "?", "help", "":
		return browseCommand{op: "help"}, nil
	case "g", "goto":
		n, err := strconv.Atoi(rest)
		if err != nil || n < 1 {
			return browseCommand{}, fmt.Errorf("g wants a page number, got %q", rest)
		}
		return browseCommand{op: "goto", page: n}, nil
	case "f", "filter":
		filters, err := parseFilters([]string{rest})
		if err != nil {
			return browseCommand{}, err
		}
		return browseCommand{op: "filter", key: filters[0].Key, value: filters[0].Value}, nil
	case "open":
		if rest == "" {
			return browseCommand{}, errors.New("open wants a screen name")
		}
		return browseCommand{op: "open", value: rest}, nil
	}
	return browseCommand{}, fmt.Errorf("unknown command %q (? for help)", word)
}

type listController = listing.Controller[model.Record]

// browser is one interactive session. Screens live in a registry so that
// switching back keeps filters and page; idle ones are reaped.
type browser struct {
	s   *session
	reg *screens.Registry[*listController]

	outMu sync.Mutex
	out   io.Writer

	mu      sync.Mutex
	screens map[string]client.Screen
	current string
	ctrl    *listController
	unsub   func()
}

func newBrowser(s *session, out io.Writer) *browser {
	b := &browser{s: s, out: out, screens: make(map[string]client.Screen)}
	b.reg = screens.New[*listController](func(name string) (*listController, error) {
		ctrl, scr, err := s.controller(name, 0)
		if err != nil {
			return nil, err
		}
		b.mu.Lock()
		b.screens[name] = scr
		b.mu.Unlock()
		return ctrl, nil
	}, s.log)
	return b
}

// attach makes name the current screen, opening it if needed, and renders
// its states from then on. A screen that was never fetched is refreshed.
func (b *browser) attach(name string) (*listController, error) {
	ctrl, err := b.reg.Open(name)
	if err != nil {
		return nil, err
	}

	b.reg.Pin(name)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = name
	if ctrl == b.ctrl {
		return ctrl, nil
	}
	if b.unsub != nil {
		b.unsub()
	}
	b.ctrl = ctrl
	scr := b.screens[name]
	ch, cancel := ctrl.Subscribe()
	b.unsub = cancel
	go b.render(scr, ch)

	if st := ctrl.State(); st.Sequence == 0 && !st.Loading {
		ctrl.Refresh()
	}
	return ctrl, nil
}

// render prints each settled state; loading states are skipped.
func (b *browser) render(scr client.Screen, ch <-chan listing.State[model.Record]) {
	var lastSeq uint64
	var lastErr error
	for st := range ch {
		if st.Loading {
			continue
		}
		if st.Sequence == lastSeq && st.Err == lastErr {
			continue
		}
		lastSeq, lastErr = st.Sequence, st.Err
		b.outMu.Lock()
		fmt.Fprintln(b.out)
		if err := printState(b.out, scr, st, ui.Width()); err != nil {
			b.s.log.Warn("browse: render failed", "err", err)
		}
		fmt.Fprint(b.out, ui.RenderMuted(scr.Name+"> "))
		b.outMu.Unlock()
	}
}

func (b *browser) printf(format string, args ...any) {
	b.outMu.Lock()
	defer b.outMu.Unlock()
	fmt.Fprintf(b.out, format, args...)
}

// changed applies a live change notification to the current screen.
func (b *browser) changed(reconnected bool) {
	b.mu.Lock()
	ctrl := b.ctrl
	b.mu.Unlock()
	if ctrl != nil {
		liveUpdate(ctrl, reconnected)
	}
}

func (b *browser) relevant(category string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return topicFilter(b.screens[b.current].Topics)(category)
}

// apply runs one command against the current screen and reports whether the
// session should end.
func (b *browser) apply(cmd browseCommand) (bool, error) {
	if cmd.op == "quit" {
		return true, nil
	}
	b.mu.Lock()
	current := b.current
	b.mu.Unlock()

	ctrl, err := b.attach(current)
	if err != nil {
		return false, err
	}

	switch cmd.op {
	case "search", "filter":
		ctrl.SetFilter(cmd.key, cmd.value)
	case "next":
		if !ctrl.NextPage() {
			b.printf("already on the last page\n")
		}
	case "prev":
		if !ctrl.PrevPage() {
			b.printf("already on the first page\n")
		}
	case "goto":
		ctrl.SetPage(cmd.page)
	case "refresh":
		ctrl.Refresh()
	case "reset":
		ctrl.ResetFilters()
	case "open":
		if _, err := b.attach(cmd.value); err != nil {
			return false, err
		}
	case "list":
		for _, e := range b.reg.List() {
			marker := " "
			if e.Name == current {
				marker = "*"
			}
			b.printf("%s %-20s uses=%d idle=%.0fs\n", marker, e.Name, e.Uses, e.IdleSecs)
		}
	case "history":
		for _, req := range ctrl.History() {
			line := fmt.Sprintf("#%-4d %-10s %-8s %s", req.Sequence, req.Status,
				req.Duration().Round(time.Millisecond), req.Spec.String())
			if req.Err != nil {
				line += "  " + req.Err.Error()
			}
			b.printf("%s\n", line)
		}
	case "help":
		b.printf("%s\n", browseHelp)
	}
	return false, nil
}

func (b *browser) close() {
	b.mu.Lock()
	if b.unsub != nil {
		b.unsub()
		b.unsub = nil
	}
	b.mu.Unlock()
	b.reg.Stop()
	if err := b.reg.CloseAll(); err != nil {
		b.s.log.Warn("browse: closing screens", "err", err)
	}
}

// runBrowse reads commands from in until EOF, "q" or ctx is done.
func runBrowse(ctx context.Context, in io.Reader, out io.Writer, s *session, name string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := newBrowser(s, out)
	defer b.close()
	b.reg.StartReaper(&screens.ReaperConfig{
		OnClose: func(name string) { s.log.Info("browse: closed idle screen", "screen", name) },
	})

	if _, err := b.attach(name); err != nil {
		return err
	}

	go func() {
		if err := follow(ctx, s.cfg.NATSURL, s.cfg.PollInterval, s.log, b.relevant, b.changed); err != nil {
			s.log.Warn("browse: live updates stopped", "err", err)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := parseBrowseCommand(line)
			if err != nil {
				b.printf("%s %v\n", ui.RenderWarn("?"), err)
				continue
			}
			quit, err := b.apply(cmd)
			if err != nil {
				b.printf("%s %v\n", ui.RenderError("error:"), err)
			}
			if quit {
				return nil
			}
		}
	}
}
