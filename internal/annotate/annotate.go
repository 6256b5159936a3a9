// Package annotate draws detection boxes onto camera images and saves them
// as JPEG snapshots.
package annotate

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"hound/internal/geometry"
)

var ErrUndecodableImage = errors.New("undecodable image")

// JPEGQuality is used for every written snapshot
const JPEGQuality = 90

// Object is one box to draw, with an optional label
type Object struct {
	Box   geometry.Box
	Label string
}

// LatestPath returns the path of the always-overwritten snapshot
func LatestPath(dir, baseName string) string {
	return filepath.Join(dir, baseName+"_latest.jpg")
}

// TimestampedPath returns the path of a snapshot for one detection time
func TimestampedPath(dir, baseName, timestamp string) string {
	return filepath.Join(dir, baseName+"_"+timestamp+".jpg")
}

// RenderAndSave decodes imageData, draws every object and writes
// {dir}/{baseName}_latest.jpg. When alsoTimestamped is set and timestamp is
// not empty it also writes {dir}/{baseName}_{timestamp}.jpg. It returns the
// paths written, in that order.
func RenderAndSave(imageData []byte, objects []Object, dir, baseName, timestamp string, alsoTimestamped bool) ([]string, error) {
	img, err := imaging.Decode(bytes.NewReader(imageData), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}

	canvas := imaging.Clone(img)
	width, height := canvas.Bounds().Dx(), canvas.Bounds().Dy()

	for _, obj := range objects {
		r := obj.Box.ToPixels(width, height)
		drawBox(canvas, r, BoxColor, lineThickness)
		drawLabel(canvas, r.Min.X, r.Min.Y, obj.Label, BoxColor)
	}

	paths := []string{LatestPath(dir, baseName)}
	if alsoTimestamped && timestamp != "" {
		paths = append(paths, TimestampedPath(dir, baseName, timestamp))
	}

	written := make([]string, 0, len(paths))
	for _, p := range paths {
		if err := imaging.Save(canvas, p, imaging.JPEGQuality(JPEGQuality)); err != nil {
			return written, fmt.Errorf("failed to save %s: %w", p, err)
		}
		written = append(written, p)
	}

	return written, nil
}
