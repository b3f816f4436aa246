// Package permission answers the camera and media permission requests the
// scanner makes before it activates.
package permission

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Gate grants or refuses device capabilities.
type Gate interface {
	RequestCamera(ctx context.Context) (bool, error)
	RequestMedia(ctx context.Context) (bool, error)
}

// StaticGate returns fixed answers.
type StaticGate struct {
	Camera bool
	Media  bool
}

func (g StaticGate) RequestCamera(context.Context) (bool, error) { return g.Camera, nil }
func (g StaticGate) RequestMedia(context.Context) (bool, error)  { return g.Media, nil }

// DeviceGate derives permissions from the filesystem: the camera is granted
// when CameraPath (a video device node or a frame spool directory) exists
// and can be read, media when MediaDir accepts new files.
type DeviceGate struct {
	CameraPath string
	MediaDir   string
}

// RequestCamera checks that CameraPath is readable.
func (g DeviceGate) RequestCamera(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if g.CameraPath == "" {
		return false, nil
	}
	info, err := os.Stat(g.CameraPath)
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat camera %s: %w", g.CameraPath, err)
	}
	if info.IsDir() {
		f, err := os.Open(g.CameraPath)
		if err != nil {
			return false, nil
		}
		f.Close()
		return true, nil
	}
	f, err := os.OpenFile(g.CameraPath, os.O_RDONLY, 0)
	if err != nil {
		return false, nil
	}
	f.Close()
	return true, nil
}

// RequestMedia checks that a file can be created in MediaDir.
func (g DeviceGate) RequestMedia(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if g.MediaDir == "" {
		return false, nil
	}
	info, err := os.Stat(g.MediaDir)
	if err != nil || !info.IsDir() {
		return false, nil
	}
	f, err := os.CreateTemp(g.MediaDir, ".scanrelay-check-*")
	if err != nil {
		return false, nil
	}
	name := f.Name()
	f.Close()
	os.Remove(filepath.Clean(name))
	return true, nil
}

// Result is the outcome of a permission round.
type Result struct {
	Camera bool
	Media  bool
	Err    error
}

// RequestAll asks for the camera, then media. A failed media request does
// not affect the camera answer.
func RequestAll(ctx context.Context, g Gate) Result {
	var r Result
	r.Camera, r.Err = g.RequestCamera(ctx)
	if r.Err != nil {
		r.Camera = false
		return r
	}
	media, err := g.RequestMedia(ctx)
	if err != nil {
		r.Err = fmt.Errorf("media: %w", err)
		return r
	}
	r.Media = media
	return r
}
