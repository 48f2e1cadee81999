package tui

import (
	"context"
	"os"
	"sync"

	tea "charm.land/bubbletea/v2"
	"golang.org/x/term"

	"github.com/wethinkt/go-tailt/internal/config"
	"github.com/wethinkt/go-tailt/internal/data"
	"github.com/wethinkt/go-tailt/internal/live"
	"github.com/wethinkt/go-tailt/internal/reconcile"
)

// termSizeOpts probes the terminal for an initial window size.
func termSizeOpts() []tea.ProgramOption {
	var opts []tea.ProgramOption
	for _, fd := range []int{int(os.Stdout.Fd()), int(os.Stdin.Fd()), int(os.Stderr.Fd())} {
		if term.IsTerminal(fd) {
			w, h, err := term.GetSize(fd)
			if err == nil && w > 0 && h > 0 {
				opts = append(opts, tea.WithWindowSize(w, h))
				break
			}
		}
	}
	return opts
}

// viewRef shares the user's current view between the TUI goroutine and
// the reconciler.
type viewRef struct {
	mu sync.Mutex
	v  reconcile.View
}

func (r *viewRef) set(v reconcile.View) {
	r.mu.Lock()
	r.v = v
	r.mu.Unlock()
}

func (r *viewRef) get() reconcile.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.v
}

// Run starts the browse TUI against a connected data layer. It owns the
// live manager's lifecycle and blocks until the user quits.
func Run(ctx context.Context, client *data.Client, syncCfg reconcile.Config, listCfg config.ListConfig, liveCfg live.Config) error {
	view := &viewRef{}
	engine := reconcile.New(client, syncCfg)
	mgr := live.NewManager(client, engine, view.get, liveCfg)

	model := NewModel(client, mgr, listCfg, view.set)
	p := tea.NewProgram(model, termSizeOpts()...)

	// External mutations wake the program loop.
	client.Store().OnChange(func() {
		p.Send(storeChangedMsg{})
	})
	mgr.OnStateChange(func(st live.State) {
		p.Send(connStateMsg{State: st})
	})

	mgr.Start(ctx)
	defer mgr.Stop()

	_, err := p.Run()
	return err
}
