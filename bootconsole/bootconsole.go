// Package bootconsole implements the scheduler/task dump view from
// spec.md's SUPPLEMENTED FEATURES, grounded on debug/debug.go's
// SIGUSR1-triggered dump trap (generalized here from writing pprof files
// to refreshing a live view) and on original_source's pretty_boot.cpp,
// which drew the kernel's own boot-time task table directly to the
// screen rather than logging it.
package bootconsole

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/maxdev1/ghostkernel/scheduler"
)

// Console is a full-screen scheduler/task dump view. It redraws on a
// fixed tick and also immediately on SIGUSR1, mirroring
// debug.HandleDebugSignals's signal trap while replacing "dump files to
// disk" with "refresh the on-screen table".
type Console struct {
	app   *tview.Application
	view  *tview.TextView
	sched *scheduler.Scheduler

	refresh chan os.Signal
}

// New builds a Console bound to sched. Run must be called to actually
// take over the terminal.
func New(sched *scheduler.Scheduler) *Console {
	view := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	view.SetBorder(true).SetTitle(" ghostkernel scheduler ")

	c := &Console{
		app:     tview.NewApplication(),
		view:    view,
		sched:   sched,
		refresh: make(chan os.Signal, 1),
	}
	signal.Notify(c.refresh, syscall.SIGUSR1)
	return c
}

const title = "[::b]ghostkernel[-:-:-] — per-cpu run queues"

func renderText(dump string, now time.Time) string {
	return fmt.Sprintf("%s\nupdated %s\n\n%s", title, now.Format(time.RFC3339), dump)
}

func (c *Console) render() {
	text := renderText(c.sched.Dump(), time.Now())
	c.app.QueueUpdateDraw(func() {
		c.view.Clear()
		fmt.Fprint(c.view, text)
	})
}

// Run takes over the terminal and redraws the scheduler dump every
// tickInterval and immediately on SIGUSR1, until the user quits with 'q'
// or Ctrl-C.
func (c *Console) Run(tickInterval time.Duration) error {
	c.view.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == 'q' {
			c.app.Stop()
			return nil
		}
		return event
	})

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	go func() {
		c.render()
		for {
			select {
			case <-ticker.C:
				c.render()
			case <-c.refresh:
				c.render()
			}
		}
	}()

	return c.app.SetRoot(c.view, true).Run()
}

// Stop tears down the application without waiting for a key press.
func (c *Console) Stop() {
	c.app.Stop()
}
