package tui

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/webitel/jetstream-explorer/internal/domain/filter"
	"github.com/webitel/jetstream-explorer/internal/domain/metrics"
	"github.com/webitel/jetstream-explorer/internal/domain/model"
	"github.com/webitel/jetstream-explorer/internal/service/dto"
)

const topCollections = 8

// view is everything one frame shows, already formatted.
type view struct {
	header   string
	totals   [][]string
	barData  []float64
	barLabel []string
	tail     []string
}

func buildView(st dto.StatusView, snap metrics.Snapshot, recent []dto.EventView) view {
	var v view

	var b strings.Builder
	fmt.Fprintf(&b, "status: %s", st.Status)
	if st.ReconnectAttempts > 0 {
		fmt.Fprintf(&b, " (retry %d)", st.ReconnectAttempts)
	}
	fmt.Fprintf(&b, "\ncursor: %s\nurl: %s\nbuffer: %d/%d  viewers: %d",
		formatCursor(st.Cursor), st.URL, st.Buffered, st.BufferCapacity, st.Viewers.Viewers)
	if st.Error != "" {
		fmt.Fprintf(&b, "\n[error: %s](fg:red)", st.Error)
	}
	b.WriteString("\n[s]tart [p]ause [r]esume [q]uit")
	v.header = b.String()

	v.totals = [][]string{
		{"", "total", "per sec"},
		{"events", fmt.Sprint(snap.TotalMessages), fmt.Sprintf("%.1f", snap.MessagesPerSecond)},
		{"creates", fmt.Sprint(snap.TotalCreates), fmt.Sprintf("%.1f", snap.CreatePerSecond)},
		{"updates", fmt.Sprint(snap.TotalUpdates), fmt.Sprintf("%.1f", snap.UpdatePerSecond)},
		{"deletes", fmt.Sprint(snap.TotalDeletes), fmt.Sprintf("%.1f", snap.DeletePerSecond)},
		{"identity", fmt.Sprint(snap.MessagesByKind[model.KindIdentity]), ""},
		{"account", fmt.Sprint(snap.MessagesByKind[model.KindAccount]), ""},
	}

	type entry struct {
		name  string
		count uint64
	}
	cols := make([]entry, 0, len(snap.MessagesByCollection))
	for name, n := range snap.MessagesByCollection {
		cols = append(cols, entry{name, n})
	}
	slices.SortFunc(cols, func(a, b entry) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})
	for _, c := range cols[:min(len(cols), topCollections)] {
		v.barData = append(v.barData, float64(c.count))
		v.barLabel = append(v.barLabel, collectionLabel(c.name))
	}

	for i := len(recent) - 1; i >= 0; i-- {
		v.tail = append(v.tail, describe(recent[i]))
	}
	return v
}

func describe(e dto.EventView) string {
	who := e.Event.GetDID()
	if e.Handle != "" {
		who = "@" + e.Handle
	}
	return model.Visit(e.Event,
		func(c *model.CommitEvent) string {
			return fmt.Sprintf("%s %-6s %s %s", who, c.Commit.Operation, collectionLabel(c.Commit.Collection), c.Commit.RKey)
		},
		func(i *model.IdentityEvent) string {
			return fmt.Sprintf("%s identity -> %s", who, i.Identity.Handle)
		},
		func(a *model.AccountEvent) string {
			state := "inactive"
			if a.Account.Active {
				state = "active"
			}
			return fmt.Sprintf("%s account %s", who, state)
		},
	)
}

func collectionLabel(nsid string) string {
	if name, ok := filter.CommonCollections[nsid]; ok {
		return name
	}
	if i := strings.LastIndexByte(nsid, '.'); i >= 0 {
		return nsid[i+1:]
	}
	return nsid
}

func formatCursor(us int64) string {
	if us <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d (%s)", us, time.UnixMicro(us).UTC().Format(time.RFC3339))
}
