package report

import (
	"bytes"
	"fmt"

	"github.com/go-pdf/fpdf"
)

type Renderer interface {
	Render(doc *Document) ([]byte, error)
}

// PDFRenderer draws a laid out document with fpdf. Output is byte for byte
// reproducible for the same document.
type PDFRenderer struct{}

func (PDFRenderer) Render(doc *Document) ([]byte, error) {

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(Margin, Margin, Margin)
	pdf.SetCreationDate(doc.GeneratedAt)
	pdf.SetModificationDate(doc.GeneratedAt)
	pdf.SetCatalogSort(true)
	pdf.SetTitle(doc.Title, true)
	pdf.SetSubject(doc.ReportID, true)
	pdf.SetAuthor(doc.Brand, true)
	pdf.SetCreator(doc.Brand, true)

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, page := range doc.Pages {
		pdf.AddPage()

		for i, blk := range page.Blocks {
			switch blk.Kind {
			case BlockText:
				pdf.SetFont("Helvetica", fontStyle(blk.Font), blk.Font.Size)
				pdf.SetTextColor(blk.Color.R, blk.Color.G, blk.Color.B)
				lh := blk.Font.LineHeight()
				for n, line := range blk.Lines {
					pdf.SetXY(blk.X, blk.Y+float64(n)*lh)
					pdf.CellFormat(blk.W, lh, tr(line), "", 0, string(blk.Align), false, 0, "")
				}

			case BlockRect:
				if blk.W <= 0 {
					continue
				}
				pdf.SetFillColor(blk.Color.R, blk.Color.G, blk.Color.B)
				pdf.Rect(blk.X, blk.Y, blk.W, blk.H, "F")

			case BlockRule:
				pdf.SetDrawColor(blk.Color.R, blk.Color.G, blk.Color.B)
				pdf.SetLineWidth(blk.H)
				pdf.Line(blk.X, blk.Y, blk.X+blk.W, blk.Y)

			case BlockImage:
				drawImage(pdf, tr, fmt.Sprintf("p%d-b%d", page.Number, i), blk)
			}
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}

	return buf.Bytes(), nil

}

// drawImage embeds an image, falling back to a caption when fpdf cannot
// parse it (for example interlaced PNGs).
func drawImage(pdf *fpdf.Fpdf, tr func(string) string, name string, blk Block) {
	opts := fpdf.ImageOptions{ImageType: blk.Image.Format}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(blk.Image.Data))
	if pdf.Err() {
		pdf.ClearError()
		pdf.SetFont("Helvetica", "", fontDetail.Size)
		pdf.SetTextColor(colorMuted.R, colorMuted.G, colorMuted.B)
		pdf.SetXY(blk.X, blk.Y)
		pdf.CellFormat(blk.W, blk.H, tr("[image could not be embedded]"), "1", 0, "C", false, 0, "")
		return
	}
	pdf.ImageOptions(name, blk.X, blk.Y, blk.W, blk.H, false, opts, 0, "")
}
