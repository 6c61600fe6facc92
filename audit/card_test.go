package audit

import (
	"bytes"
	"image/png"
	"testing"
)

func TestSummaryCardImage(t *testing.T) {
	b, err := ComputeBudget([]float64{5.00, 5.02, 4.98}, []ErrorSource{ManagedSource(0.2)}, CoverageK1)
	if err != nil {
		t.Fatalf("ComputeBudget: %v", err)
	}

	img := SummaryCardImage("Aerial Photography (15-30 cm)", b)
	if img.Bounds().Dx() != cardWidth {
		t.Errorf("width = %d, want %d", img.Bounds().Dx(), cardWidth)
	}
	// Title, blank line and five summary lines.
	wantHeight := cardMargin*2 + cardLineHeight*7
	if img.Bounds().Dy() != wantHeight {
		t.Errorf("height = %d, want %d", img.Bounds().Dy(), wantHeight)
	}
	if got := img.RGBAAt(0, 0); got != cardBackground {
		t.Errorf("background = %v, want %v", got, cardBackground)
	}
}

func TestRenderSummaryCard(t *testing.T) {
	b, err := ComputeBudget(nil, []ErrorSource{ManagedSource(0.2)}, CoverageK3)
	if err != nil {
		t.Fatalf("ComputeBudget: %v", err)
	}

	var buf bytes.Buffer
	if err := RenderSummaryCard(&buf, "Custom/Manual", b); err != nil {
		t.Fatalf("RenderSummaryCard: %v", err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Errorf("output is not a PNG: %v", err)
	}
}
