package client

import (
	"os"
	"path/filepath"

	"github.com/GriffinCanCode/portal/internal/scene"
)

// SVGFile writes every scene to a file. The file is replaced atomically so a
// viewer polling it never sees a partial document.
type SVGFile struct {
	Path          string
	Width, Height float64
}

// Render implements lifecycle.Renderer.
func (f *SVGFile) Render(s scene.Scene) error {
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), ".portal-*.svg")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := scene.WriteSVG(tmp, s, f.Width, f.Height); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}
