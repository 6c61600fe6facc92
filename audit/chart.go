package audit

import (
	"fmt"
	"image/color"
	"image/png"
	"io"
	"sync"

	"github.com/go-fonts/latin-modern/lmmono10regular"
	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// ChartBar is one horizontal bar of the budget chart
type ChartBar struct {
	Label string
	Value float64
	Color color.RGBA
}

var (
	sensorColor   = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	userColor     = color.RGBA{R: 120, G: 170, B: 90, A: 255}
	observerColor = color.RGBA{R: 230, G: 160, B: 40, A: 255}
	combinedColor = color.RGBA{R: 110, G: 110, B: 110, A: 255}
	expandedColor = color.RGBA{R: 200, G: 50, B: 50, A: 255}
)

// BudgetChart draws each contributor alongside uo, uc and U as proportional
// bars. Dimensions are canvas millimeters.
type BudgetChart struct {
	Bars       []ChartBar
	BarHeight  float64
	BarGap     float64
	Width      float64 // longest bar
	LabelWidth float64 // column left of the bars
	ValueWidth float64 // column right of the longest bar
	FontSize   float64 // points
	Padding    float64
	Resolution canvas.Resolution // PNG output only
}

const mmPerPoint = 25.4 / 72

var (
	chartFontOnce sync.Once
	chartFont     *canvas.FontFamily
	chartFontErr  error
)

func loadChartFont() (*canvas.FontFamily, error) {
	chartFontOnce.Do(func() {
		family := canvas.NewFontFamily("lmmono10")
		if err := family.LoadFont(lmmono10regular.TTF, 0, canvas.FontRegular); err != nil {
			chartFontErr = fmt.Errorf("loading chart font: %w", err)
			return
		}
		chartFont = family
	})
	return chartFont, chartFontErr
}

// NewBudgetChart builds the bars in contributor order: sources as listed,
// then uo (when defined), uc and U.
func NewBudgetChart(b Budget, sources []ErrorSource) *BudgetChart {
	bars := make([]ChartBar, 0, len(sources)+3)
	for _, src := range sources {
		c := userColor
		if src.IsManaged() {
			c = sensorColor
		}
		bars = append(bars, ChartBar{Label: src.Label(), Value: src.Value, Color: c})
	}
	if !b.InsufficientTrials {
		bars = append(bars, ChartBar{Label: "uo", Value: b.ObserverUncertainty, Color: observerColor})
	}
	bars = append(bars,
		ChartBar{Label: "uc", Value: b.CombinedUncertainty, Color: combinedColor},
		ChartBar{Label: "U", Value: b.ExpandedUncertainty, Color: expandedColor},
	)

	return &BudgetChart{
		Bars:       bars,
		BarHeight:  8,
		BarGap:     4,
		Width:      120,
		LabelWidth: 45,
		ValueWidth: 25,
		FontSize:   9,
		Padding:    10,
		Resolution: canvas.DPI(150),
	}
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
	RenderText(text *canvas.Text, m canvas.Matrix)
}

func (c *BudgetChart) size() (float64, float64) {
	n := float64(len(c.Bars))
	height := 2*c.Padding + n*c.BarHeight
	if n > 1 {
		height += (n - 1) * c.BarGap
	}
	return c.LabelWidth + c.Width + c.ValueWidth + 2*c.Padding, height
}

// RenderToSVG writes the chart as SVG
func (c *BudgetChart) RenderToSVG(w io.Writer) error {
	width, height := c.size()
	svgRenderer := svg.New(w, width, height, nil)
	if err := c.render(svgRenderer, width, height); err != nil {
		return err
	}
	return svgRenderer.Close()
}

// RenderToPNG writes the chart as PNG at c.Resolution
func (c *BudgetChart) RenderToPNG(w io.Writer) error {
	width, height := c.size()
	rast := rasterizer.New(width, height, c.Resolution, canvas.DefaultColorSpace)
	if err := c.render(rast, width, height); err != nil {
		return err
	}
	return png.Encode(w, rast)
}

func (c *BudgetChart) render(renderer canvasRenderer, width, height float64) error {
	family, err := loadChartFont()
	if err != nil {
		return err
	}
	face := family.Face(c.FontSize)

	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	maxValue := 0.0
	for _, bar := range c.Bars {
		if bar.Value > maxValue {
			maxValue = bar.Value
		}
	}

	axisX := c.Padding + c.LabelWidth
	// Baseline that vertically centers cap-height text on a bar.
	capHeight := 0.7 * c.FontSize * mmPerPoint
	textOffset := (c.BarHeight - capHeight) / 2

	// Canvas y grows upward, so the first bar is placed at the top.
	y := height - c.Padding - c.BarHeight
	for _, bar := range c.Bars {
		barWidth := 0.0
		if maxValue > 0 && bar.Value > 0 {
			barWidth = c.Width * bar.Value / maxValue

			barStyle := canvas.DefaultStyle
			barStyle.Fill = canvas.Paint{Color: bar.Color}
			barStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

			barPath := canvas.Rectangle(barWidth, c.BarHeight)
			barPath = barPath.Translate(axisX, y)
			renderer.RenderPath(barPath, barStyle, canvas.Identity)
		}

		label := canvas.NewTextLine(face, bar.Label, canvas.Right)
		renderer.RenderText(label, canvas.Identity.Translate(axisX-2, y+textOffset))

		value := canvas.NewTextLine(face, fmt.Sprintf("±%.4fm", bar.Value), canvas.Left)
		renderer.RenderText(value, canvas.Identity.Translate(axisX+barWidth+2, y+textOffset))

		y -= c.BarHeight + c.BarGap
	}

	axisStyle := canvas.DefaultStyle
	axisStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	axisStyle.Stroke = canvas.Paint{Color: canvas.Black}
	axisStyle.StrokeWidth = 0.5

	axis := &canvas.Path{}
	axis.MoveTo(axisX, c.Padding/2)
	axis.LineTo(axisX, height-c.Padding/2)
	renderer.RenderPath(axis, axisStyle, canvas.Identity)
	return nil
}
