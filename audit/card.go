package audit

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	cardWidth      = 420
	cardLineHeight = 16
	cardMargin     = 12
)

var (
	cardBackground = color.RGBA{R: 250, G: 250, B: 245, A: 255}
	cardHeader     = color.RGBA{R: 40, G: 40, B: 60, A: 255}
	cardText       = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	cardResult     = color.RGBA{R: 170, G: 30, B: 30, A: 255}
)

// RenderSummaryCard draws the live audit panel as a PNG. The result line is
// highlighted; everything else is plain text.
func RenderSummaryCard(w io.Writer, title string, b Budget) error {
	img := SummaryCardImage(title, b)
	return png.Encode(w, img)
}

// SummaryCardImage returns the card as an image for callers that compose it
func SummaryCardImage(title string, b Budget) *image.RGBA {
	lines := strings.Split(strings.TrimRight(FormatSummary(b), "\n"), "\n")
	height := cardMargin*2 + cardLineHeight*(len(lines)+2)

	img := image.NewRGBA(image.Rect(0, 0, cardWidth, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: cardBackground}, image.Point{}, draw.Src)

	y := cardMargin + cardLineHeight
	drawText(img, cardMargin, y, title, cardHeader)
	y += cardLineHeight * 2

	result := b.Result()
	for _, line := range lines {
		c := cardText
		if line == result {
			c = cardResult
		}
		drawText(img, cardMargin, y, line, c)
		y += cardLineHeight
	}
	return img
}

// drawText draws text at x, y (baseline) using the basic 7x13 font
func drawText(img *image.RGBA, x, y int, text string, c color.RGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}
