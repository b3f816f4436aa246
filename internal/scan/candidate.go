// Package scan holds the decoded-code types and the gate that turns a
// continuous decoder stream into at most one accepted candidate per arm.
package scan

import "fmt"

// Symbology identifies the barcode family a candidate was decoded from.
// It is carried for display and logging only.
type Symbology string

const (
	QR      Symbology = "qr"
	EAN13   Symbology = "ean-13"
	EAN8    Symbology = "ean-8"
	UPCA    Symbology = "upc-a"
	Code128 Symbology = "code-128"
)

// DefaultSymbologies is the set a scanner subscribes with unless configured
// otherwise.
var DefaultSymbologies = []Symbology{QR, EAN13}

// KnownSymbologies lists every symbology the decoder understands.
var KnownSymbologies = []Symbology{QR, EAN13, EAN8, UPCA, Code128}

// ParseSymbology returns the Symbology named by s.
func ParseSymbology(s string) (Symbology, error) {
	for _, sym := range KnownSymbologies {
		if string(sym) == s {
			return sym, nil
		}
	}
	return "", fmt.Errorf("unknown symbology %q", s)
}

// Candidate is a single decoded observation from the frame source.
// Value is opaque: it is never trimmed or validated here.
type Candidate struct {
	Value     string
	Symbology Symbology
}

// Batch is every candidate reported for one frame, in decoder order.
type Batch []Candidate
