// Package dispatch turns an accepted candidate into one outbound barcode
// event and one user acknowledgment.
package dispatch

import (
	"errors"
	"fmt"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/scanrelay/scanrelay/internal/client"
	"github.com/scanrelay/scanrelay/internal/scan"
)

// AckMode selects when the user acknowledgment fires.
type AckMode string

const (
	// Optimistic acknowledges right after the local hand-off, whether or
	// not the frame could be sent.
	Optimistic AckMode = "optimistic"
	// Confirmed waits for the listener to ack the frame.
	Confirmed AckMode = "confirmed"
)

// DefaultAckTimeout bounds how long Confirmed mode waits for the listener.
const DefaultAckTimeout = 5 * time.Second

// ErrAckTimeout is reported when the listener did not ack in time.
var ErrAckTimeout = errors.New("no acknowledgment from listener")

// ParseAckMode returns the AckMode named by s. Empty means Optimistic.
func ParseAckMode(s string) (AckMode, error) {
	switch AckMode(s) {
	case "", Optimistic:
		return Optimistic, nil
	case Confirmed:
		return Confirmed, nil
	}
	return "", fmt.Errorf("unknown ack mode %q", s)
}

// Emitter is the slice of the transport session the dispatcher uses.
type Emitter interface {
	Emit(event, payload string) error
	EmitWithAck(event, payload string) (<-chan struct{}, error)
}

// ackForgetter is implemented by emitters that track pending acks and want
// to hear when the dispatcher stops waiting for one.
type ackForgetter interface {
	ForgetAck(ack <-chan struct{})
}

// AckMsg is the single acknowledgment produced for every dispatched
// candidate. Err is informational: in Optimistic mode the acknowledgment is
// shown even when Err is set.
type AckMsg struct {
	Candidate scan.Candidate
	Confirmed bool
	Err       error
	At        time.Time
}

// Dispatcher sends accepted candidates through an injected Emitter.
type Dispatcher struct {
	emitter Emitter
	mode    AckMode
	timeout time.Duration
}

// New creates a dispatcher. A non-positive timeout uses DefaultAckTimeout.
func New(emitter Emitter, mode AckMode, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultAckTimeout
	}
	if mode == "" {
		mode = Optimistic
	}
	return &Dispatcher{emitter: emitter, mode: mode, timeout: timeout}
}

// Mode reports the acknowledgment mode.
func (d *Dispatcher) Mode() AckMode {
	return d.mode
}

// Dispatch emits exactly one barcode event whose payload is c.Value and
// returns a command yielding exactly one AckMsg. The emit happens before
// Dispatch returns; only the wait for a remote ack runs off the event loop.
func (d *Dispatcher) Dispatch(c scan.Candidate) tea.Cmd {
	if d.mode == Confirmed {
		return d.dispatchConfirmed(c)
	}

	err := d.emitter.Emit(client.EventBarcode, c.Value)
	if err != nil {
		log.Printf("scan %q sent best-effort: %v", c.Value, err)
	} else {
		log.Printf("scan %q sent (%s)", c.Value, c.Symbology)
	}
	msg := AckMsg{Candidate: c, Err: err, At: time.Now()}
	return func() tea.Msg { return msg }
}

func (d *Dispatcher) dispatchConfirmed(c scan.Candidate) tea.Cmd {
	ack, err := d.emitter.EmitWithAck(client.EventBarcode, c.Value)
	if err != nil {
		log.Printf("scan %q not sent: %v", c.Value, err)
		msg := AckMsg{Candidate: c, Err: err, At: time.Now()}
		return func() tea.Msg { return msg }
	}

	timeout, emitter := d.timeout, d.emitter
	return func() tea.Msg {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-ack:
			log.Printf("scan %q confirmed by listener", c.Value)
			return AckMsg{Candidate: c, Confirmed: true, At: time.Now()}
		case <-timer.C:
			log.Printf("scan %q unconfirmed after %v", c.Value, timeout)
			if f, ok := emitter.(ackForgetter); ok {
				f.ForgetAck(ack)
			}
			return AckMsg{Candidate: c, Err: ErrAckTimeout, At: time.Now()}
		}
	}
}
