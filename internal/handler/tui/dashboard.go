// Package tui renders a terminal dashboard over the explorer.
package tui

import (
	"context"
	"fmt"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/webitel/jetstream-explorer/internal/domain/filter"
	"github.com/webitel/jetstream-explorer/internal/service"
)

const (
	DefaultRefresh = 500 * time.Millisecond
	tailSize       = 20
)

type Dashboard struct {
	explorer service.Explorer
	refresh  time.Duration

	header *widgets.Paragraph
	totals *widgets.Table
	bars   *widgets.BarChart
	tail   *widgets.List
	grid   *ui.Grid
}

func NewDashboard(explorer service.Explorer, refresh time.Duration) *Dashboard {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return &Dashboard{explorer: explorer, refresh: refresh}
}

// Run owns the terminal until ctx is done or the user quits.
func (d *Dashboard) Run(ctx context.Context) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("tui init: %w", err)
	}
	defer ui.Close()

	d.layout()
	d.draw()

	events := ui.PollEvents()
	ticker := time.NewTicker(d.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-events:
			switch e.ID {
			case "q", "<C-c>":
				return nil
			case "s":
				d.explorer.Start()
			case "p":
				d.explorer.Pause()
			case "r":
				d.explorer.Resume()
			case "<Resize>":
				if size, ok := e.Payload.(ui.Resize); ok {
					d.grid.SetRect(0, 0, size.Width, size.Height)
					ui.Clear()
				}
			}
			d.draw()
		case <-ticker.C:
			d.draw()
		}
	}
}

func (d *Dashboard) layout() {
	d.header = widgets.NewParagraph()
	d.header.Title = "Jetstream"

	d.totals = widgets.NewTable()
	d.totals.Title = "Totals"
	d.totals.RowSeparator = false

	d.bars = widgets.NewBarChart()
	d.bars.Title = "Collections"
	d.bars.BarWidth = 8

	d.tail = widgets.NewList()
	d.tail.Title = "Recent events"

	d.grid = ui.NewGrid()
	w, h := ui.TerminalDimensions()
	d.grid.SetRect(0, 0, w, h)
	d.grid.Set(
		ui.NewRow(0.3,
			ui.NewCol(0.6, d.header),
			ui.NewCol(0.4, d.totals),
		),
		ui.NewRow(0.3, ui.NewCol(1.0, d.bars)),
		ui.NewRow(0.4, ui.NewCol(1.0, d.tail)),
	)
}

func (d *Dashboard) draw() {
	v := buildView(d.explorer.Status(), d.explorer.Metrics(), d.explorer.Recent(tailSize, filter.All()))

	d.header.Text = v.header
	d.totals.Rows = v.totals
	d.bars.Data = v.barData
	d.bars.Labels = v.barLabel
	d.tail.Rows = v.tail

	ui.Render(d.grid)
}
