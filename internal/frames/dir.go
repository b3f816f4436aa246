package frames

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/scanrelay/scanrelay/internal/scan"
)

// DefaultInterval is the frame poll period when none is configured.
const DefaultInterval = 100 * time.Millisecond

// DirSource treats a spool directory as the camera: a capture process drops
// PNG or JPEG frames there and every poll decodes the frames that are new.
// Capture processes should rename a frame into place once it is complete.
type DirSource struct {
	Dir      string
	Interval time.Duration
	// Remove deletes each frame after decoding it.
	Remove bool
}

// Subscribe starts polling Dir. Frames already in Dir when Subscribe is
// called are stale and never delivered; with Remove set they are deleted.
func (s *DirSource) Subscribe(ctx context.Context, symbologies []scan.Symbology) (<-chan scan.Batch, error) {
	info, err := os.Stat(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("frame dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("frame dir %s is not a directory", s.Dir)
	}

	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	ch := make(chan scan.Batch)
	p := &dirPoller{
		dir:     s.Dir,
		remove:  s.Remove,
		decoder: NewDecoder(symbologies),
		seen:    make(map[string]time.Time),
	}
	p.skipExisting()
	go p.run(ctx, interval, ch)
	return ch, nil
}

type dirPoller struct {
	dir     string
	remove  bool
	decoder *Decoder
	seen    map[string]time.Time // frame name -> mod time already decoded
}

func (p *dirPoller) run(ctx context.Context, interval time.Duration, ch chan<- scan.Batch) {
	defer close(ch)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		for _, b := range p.poll() {
			select {
			case ch <- b:
			case <-ctx.Done():
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// skipExisting marks the frames already spooled as seen.
func (p *dirPoller) skipExisting() {
	for _, name := range p.frameNames() {
		path := filepath.Join(p.dir, name)
		if p.remove {
			if err := os.Remove(path); err != nil {
				log.Printf("stale frame remove error: %v", err)
			}
			continue
		}
		if info, err := os.Stat(path); err == nil {
			p.seen[name] = info.ModTime()
		}
	}
}

// frameNames lists the frame files in the spool directory, sorted.
func (p *dirPoller) frameNames() []string {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		log.Printf("frame dir read error: %v", err)
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !isFrame(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

// poll decodes frames that appeared or changed since the last poll, oldest
// name first.
func (p *dirPoller) poll() []scan.Batch {
	names := p.frameNames()
	present := make(map[string]bool, len(names))
	for _, name := range names {
		present[name] = true
	}

	for name := range p.seen {
		if !present[name] {
			delete(p.seen, name)
		}
	}

	var batches []scan.Batch
	for _, name := range names {
		path := filepath.Join(p.dir, name)
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if mod, ok := p.seen[name]; ok && mod.Equal(info.ModTime()) {
			continue
		}
		p.seen[name] = info.ModTime()

		b, err := p.decoder.DecodeFile(path)
		if err != nil {
			log.Printf("frame decode error: %v", err)
		} else if len(b) > 0 {
			batches = append(batches, b)
		}

		if p.remove {
			if err := os.Remove(path); err == nil {
				delete(p.seen, name)
			}
		}
	}
	return batches
}

func isFrame(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}
