package report

import (
	"sync"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
)

// Measurer reports rendered text width in millimetres.
type Measurer interface {
	TextWidth(text string, font Font) float64
}

// FontMeasurer uses the Helvetica metrics the PDF renderer draws with, so
// layout and output agree.
type FontMeasurer struct {
	mu  sync.Mutex
	pdf *fpdf.Fpdf
	tr  func(string) string
}

func NewFontMeasurer() *FontMeasurer {
	pdf := fpdf.New("P", "mm", "A4", "")
	return &FontMeasurer{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
}

func (m *FontMeasurer) TextWidth(text string, font Font) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pdf.SetFont("Helvetica", fontStyle(font), font.Size)
	return m.pdf.GetStringWidth(m.tr(text))
}

// FixedMeasurer gives every rune the same width regardless of font.
type FixedMeasurer struct {
	RuneWidth float64
}

func (m FixedMeasurer) TextWidth(text string, _ Font) float64 {
	return float64(utf8.RuneCountInString(text)) * m.RuneWidth
}

func fontStyle(f Font) string {
	if f.Bold {
		return "B"
	}
	return ""
}
