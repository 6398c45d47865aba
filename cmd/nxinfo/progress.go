package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"nxinfo/internal/scan"
)

// progressReporter draws a progress bar for a running batch when the output
// is a terminal. Notifications arrive on the scanning goroutine and are
// rendered on a second one.
type progressReporter struct {
	w       io.Writer
	enabled bool
	events  chan scan.Progress
}

func newProgressReporter(w io.Writer) *progressReporter {
	return &progressReporter{
		w:       w,
		enabled: isTerminal(w),
		events:  make(chan scan.Progress, 16),
	}
}

func (p *progressReporter) notify(ev scan.Progress) {
	if p.enabled {
		p.events <- ev
	}
}

// run executes fn while rendering its progress. The result is returned even
// when fn fails so that canceled batches keep their partial titles.
func (p *progressReporter) run(ctx context.Context, fn func(context.Context) (*scan.Result, error)) (*scan.Result, error) {
	var res *scan.Result
	var g errgroup.Group
	g.Go(func() error {
		defer close(p.events)
		var err error
		res, err = fn(ctx)
		return err
	})
	g.Go(p.consume)
	err := g.Wait()
	return res, err
}

// consume drains every event so the scanning goroutine never blocks, even
// after a render error.
func (p *progressReporter) consume() error {
	var (
		bar      *progressbar.ProgressBar
		firstErr error
	)
	for ev := range p.events {
		if ev.Indeterminate() {
			total := ev.Total
			if total <= 0 {
				total = -1
			}
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(p.w),
				progressbar.OptionSetDescription("scanning"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
				progressbar.OptionThrottle(65*time.Millisecond),
			)
			continue
		}
		if bar == nil || firstErr != nil {
			continue
		}
		bar.Describe(ev.Label)
		firstErr = bar.Set(ev.Index)
	}
	if bar == nil || firstErr != nil {
		return firstErr
	}
	return bar.Finish()
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
