package frames

import (
	"context"
	"errors"
	"time"

	"github.com/scanrelay/scanrelay/internal/scan"
)

// MockSource emits synthetic frames for running without a camera. Every
// tick reports the next frame in Frames, cycling forever, so an armed gate
// always has something to accept.
type MockSource struct {
	Frames   []scan.Batch
	Interval time.Duration
}

// NewMockSource builds one single-candidate QR frame per payload. Every
// fourth frame also carries the following payload as a linear code, which
// is what a decoder reports when two codes overlap in view.
func NewMockSource(payloads []string, interval time.Duration) *MockSource {
	m := &MockSource{Interval: interval}
	for i, p := range payloads {
		b := scan.Batch{{Value: p, Symbology: scan.QR}}
		if i%4 == 3 && len(payloads) > 1 {
			b = append(b, scan.Candidate{Value: payloads[(i+1)%len(payloads)], Symbology: scan.EAN13})
		}
		m.Frames = append(m.Frames, b)
	}
	return m
}

// Subscribe starts the generator. Candidates of symbologies that were not
// requested are filtered out, as a real decoder would never report them.
func (m *MockSource) Subscribe(ctx context.Context, symbologies []scan.Symbology) (<-chan scan.Batch, error) {
	if len(m.Frames) == 0 {
		return nil, errors.New("mock source has no frames")
	}
	if len(symbologies) == 0 {
		symbologies = scan.DefaultSymbologies
	}
	interval := m.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ch := make(chan scan.Batch)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			var b scan.Batch
			for _, c := range m.Frames[i%len(m.Frames)] {
				if wants(symbologies, c.Symbology) {
					b = append(b, c)
				}
			}
			if len(b) == 0 {
				continue
			}
			select {
			case ch <- b:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
