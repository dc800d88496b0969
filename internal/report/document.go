// Package report lays out evidence reports as positioned blocks on A4 pages
// and renders them to PDF, HTML or a spreadsheet register.
package report

import (
	"strings"
	"time"
)

// Page geometry in millimetres.
const (
	PageWidth    = 210.0
	PageHeight   = 297.0
	Margin       = 20.0
	FooterHeight = 12.0

	ContentWidth  = PageWidth - 2*Margin
	ContentTop    = Margin
	ContentBottom = PageHeight - Margin - FooterHeight

	ImageWidth     = 120.0
	MaxImageHeight = 140.0
	MaxBarWidth    = 90.0
)

type BlockKind int

const (
	BlockText BlockKind = iota
	BlockRect
	BlockRule
	BlockImage
)

type Align string

const (
	AlignLeft   Align = "L"
	AlignCenter Align = "C"
	AlignRight  Align = "R"
)

type Color struct {
	R, G, B int
}

var (
	colorText    = Color{33, 37, 41}
	colorMuted   = Color{108, 117, 125}
	colorBrand   = Color{13, 71, 161}
	colorBar     = Color{25, 118, 210}
	colorRule    = Color{206, 212, 218}
	colorSuccess = Color{46, 125, 50}
	colorPending = Color{239, 108, 0}
)

type Font struct {
	Size float64
	Bold bool
}

// LineHeight is the vertical advance for one line of text in this font.
func (f Font) LineHeight() float64 {
	// 1pt = 0.3528mm, with 40% leading.
	return f.Size * 0.3528 * 1.4
}

type Image struct {
	Data   []byte
	Format string // JPG or PNG
}

// Block is one positioned element. Coordinates are the top-left corner.
type Block struct {
	Kind  BlockKind
	X, Y  float64
	W, H  float64
	Lines []string
	Font  Font
	Align Align
	Color Color
	Image *Image

	// Section is the evidence type of a section heading.
	Section string
	// ItemID ties every block of one evidence item together.
	ItemID string
}

// Bottom is the y coordinate of the block's lower edge.
func (b Block) Bottom() float64 {
	return b.Y + b.H
}

func (b Block) Text() string {
	return strings.Join(b.Lines, "\n")
}

type Page struct {
	Number int
	Blocks []Block
}

// Document is the fully laid out report. Pages are complete once the
// footer pass has run.
type Document struct {
	ReportID    string
	Title       string
	GeneratedAt time.Time
	Brand       string
	Pages       []*Page
	Footed      bool
}

// SectionHeaders returns the evidence types that received a section heading,
// in document order.
func (d *Document) SectionHeaders() []string {
	var out []string
	for _, p := range d.Pages {
		for _, b := range p.Blocks {
			if b.Section != "" {
				out = append(out, b.Section)
			}
		}
	}
	return out
}

// Text concatenates every text block, page by page.
func (d *Document) Text() string {
	var sb strings.Builder
	for _, p := range d.Pages {
		for _, b := range p.Blocks {
			if b.Kind == BlockText {
				sb.WriteString(b.Text())
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String()
}
