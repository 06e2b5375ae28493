// Command compositordemo composites a small layer tree offscreen and
// writes the result to a PNG.
package main

import (
	"flag"
	"image"
	"image/color"
	"image/png"
	"log"
	"os"

	"github.com/gogpu/compositor"
	"github.com/gogpu/compositor/layers"
	"github.com/gogpu/compositor/output"
)

type demoClient struct {
	width, height int
}

func (c *demoClient) Layout() {}

func (c *demoClient) CreateOutputSurface() *output.OutputSurface {
	return output.NewOutputSurface(nil, output.NewSoftwareDevice(c.width, c.height), output.Capabilities{
		MaxPartialTextureUpdates: 8,
	})
}

func (c *demoClient) WillCommit()             {}
func (c *demoClient) DidCommit()              {}
func (c *demoClient) DidCommitAndDrawFrame()  {}
func (c *demoClient) DidCompleteSwapBuffers() {}

func main() {
	var (
		width  = flag.Int("width", 800, "viewport width in device pixels")
		height = flag.Int("height", 600, "viewport height in device pixels")
		scale  = flag.Float64("scale", 1.0, "device scale factor")
		out    = flag.String("output", "composite.png", "output file")
	)
	flag.Parse()

	client := &demoClient{width: *width, height: *height}
	host := compositor.NewLayerTreeHost(client, compositor.DefaultSettings())
	defer host.Close()

	dsf := float32(*scale)
	layoutW := int(float32(*width) / dsf)
	layoutH := int(float32(*height) / dsf)

	root := layers.NewContentLayer(host.Manager(), fillPainter(color.RGBA{R: 24, G: 26, B: 34, A: 255}))
	root.SetBounds(layers.Size{Width: layoutW, Height: layoutH})
	root.SetContentsScale(dsf)

	// A grid of tiles, each its own layer, as a tiled content area would be.
	tile := 96
	palette := []color.RGBA{
		{R: 220, G: 80, B: 70, A: 255},
		{R: 80, G: 180, B: 100, A: 255},
		{R: 70, G: 120, B: 220, A: 255},
		{R: 230, G: 190, B: 60, A: 255},
	}
	i := 0
	for y := 20; y+tile < layoutH-20; y += tile + 12 {
		for x := 20; x+tile < layoutW-20; x += tile + 12 {
			l := layers.NewContentLayer(host.Manager(), checkerPainter(palette[i%len(palette)]))
			l.SetBounds(layers.Size{Width: tile, Height: tile})
			l.SetPosition(layers.PointF{X: float32(x), Y: float32(y)})
			l.SetContentsScale(dsf)
			root.AddChild(l)
			i++
		}
	}

	host.SetRootLayer(root)
	host.SetDeviceScaleFactor(dsf)
	host.SetViewportSize(
		layers.Size{Width: layoutW, Height: layoutH},
		layers.Size{Width: *width, Height: *height},
	)

	frame := image.NewRGBA(image.Rect(0, 0, *width, *height))
	if err := host.CompositeAndReadback(frame, frame.Bounds()); err != nil {
		log.Fatalf("composite failed: %v", err)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("create %s: %v", *out, err)
	}
	defer f.Close()
	if err := png.Encode(f, frame); err != nil {
		log.Fatalf("encode: %v", err)
	}

	stats := host.RenderingStats()
	log.Printf("wrote %s (%dx%d, %d layers, %d textures updated)",
		*out, *width, *height, i+1, stats.UpdatedTextureCount)
}

func fillPainter(c color.RGBA) layers.PainterFunc {
	return func(dst *image.RGBA, _ float32) {
		b := dst.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				dst.SetRGBA(x, y, c)
			}
		}
	}
}

func checkerPainter(c color.RGBA) layers.PainterFunc {
	dim := color.RGBA{R: c.R / 2, G: c.G / 2, B: c.B / 2, A: 255}
	return func(dst *image.RGBA, scale float32) {
		cell := int(16 * scale)
		if cell < 1 {
			cell = 1
		}
		b := dst.Bounds()
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if (x/cell+y/cell)%2 == 0 {
					dst.SetRGBA(x, y, c)
				} else {
					dst.SetRGBA(x, y, dim)
				}
			}
		}
	}
}
