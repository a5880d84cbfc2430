package viz

import (
	"bytes"
	"errors"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
)

var ErrNotEnoughData = errors.New("not enough samples to plot")

type PlotOptions func(p *plot.Plot)

type ImageContainer struct {
	name string
	data []byte
}

func (i *ImageContainer) Name() string {
	return i.name
}

// Data is PNG encoded.
func (i *ImageContainer) Data() []byte {
	return i.data
}

// Producer is anything that can render its current state as an image.
type Producer interface {
	Name() string
	GetImage() (*ImageContainer, error)
	AddPlotOption(opt PlotOptions)
}

// Registry collects producers by bucket, usually one bucket per processing chain.
type Registry interface {
	RegisterPlot(bucket string, p Producer)
}

func plotWithDefaults() *plot.Plot {

	p := plot.New()
	p.BackgroundColor = color.Black
	p.Title.TextStyle.Color = color.White
	p.Y.Label.TextStyle.Color = color.White
	p.Y.Color = color.White
	p.X.Label.TextStyle.Color = color.White
	p.X.Color = color.White
	p.Legend.TextStyle.Color = color.White
	p.X.Tick.Color = color.White
	p.Y.Tick.Color = color.White
	p.X.Tick.Label.Color = color.White
	p.Y.Tick.Label.Color = color.White

	return p
}

func render(name string, p *plot.Plot) (*ImageContainer, error) {
	w, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		return nil, err
	}
	var imageData bytes.Buffer
	if _, err := w.WriteTo(&imageData); err != nil {
		return nil, err
	}
	return &ImageContainer{name: name, data: imageData.Bytes()}, nil
}
