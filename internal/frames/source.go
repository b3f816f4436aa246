// Package frames provides the frame sources the scanner subscribes to.
// A source decodes frames on its own goroutine and delivers one Batch per
// frame that contained at least one recognised code.
package frames

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/scanrelay/scanrelay/internal/scan"
)

// Source yields decoded candidates from live frames. The returned channel
// is closed when ctx ends.
type Source interface {
	Subscribe(ctx context.Context, symbologies []scan.Symbology) (<-chan scan.Batch, error)
}

// BatchMsg carries one frame's candidates onto the event loop. Sub
// identifies the subscription so stale batches can be dropped.
type BatchMsg struct {
	Sub   int
	Batch scan.Batch
}

// ClosedMsg reports that subscription Sub delivered its last batch.
type ClosedMsg struct{ Sub int }

// Next returns a Bubble Tea command that waits for the next batch on ch.
// Re-issue it after every BatchMsg.
func Next(sub int, ch <-chan scan.Batch) tea.Cmd {
	return func() tea.Msg {
		b, ok := <-ch
		if !ok {
			return ClosedMsg{Sub: sub}
		}
		return BatchMsg{Sub: sub, Batch: b}
	}
}

func wants(symbologies []scan.Symbology, s scan.Symbology) bool {
	for _, want := range symbologies {
		if want == s {
			return true
		}
	}
	return false
}
