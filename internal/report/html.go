package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
)

var htmlTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{ .Title }}</title>
<style>
body { margin: 0; background: #e9ecef; font-family: Helvetica, Arial, sans-serif; }
.page { position: relative; width: 210mm; height: 297mm; margin: 8mm auto; background: #fff; box-shadow: 0 1px 4px rgba(0,0,0,.2); overflow: hidden; page-break-after: always; }
.blk { position: absolute; box-sizing: border-box; white-space: pre; overflow: hidden; }
@media print { body { background: #fff; } .page { margin: 0; box-shadow: none; } }
</style>
</head>
<body>
{{- range .Pages }}
<section class="page" id="page-{{ .Number }}">
{{- range .Blocks }}
{{- if .Src }}
<img class="blk" style="{{ .Style }}" src="{{ .Src }}" alt="Evidence image">
{{- else if .Lines }}
<div class="blk" style="{{ .Style }}"{{ if .Section }} data-section="{{ .Section }}"{{ end }}>{{ range $i, $l := .Lines }}{{ if $i }}<br>{{ end }}{{ $l }}{{ end }}</div>
{{- else }}
<div class="blk" style="{{ .Style }}"></div>
{{- end }}
{{- end }}
</section>
{{- end }}
</body>
</html>
`))

type htmlBlock struct {
	Style   template.CSS
	Lines   []string
	Src     template.URL
	Section string
}

type htmlPage struct {
	Number int
	Blocks []htmlBlock
}

// HTMLRenderer produces a single self-contained page with images inlined as
// data URIs.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(doc *Document) ([]byte, error) {
	data := struct {
		Title string
		Pages []htmlPage
	}{Title: doc.Title}

	for _, p := range doc.Pages {
		hp := htmlPage{Number: p.Number}
		for _, blk := range p.Blocks {
			if hb, ok := toHTMLBlock(blk); ok {
				hp.Blocks = append(hp.Blocks, hb)
			}
		}
		data.Pages = append(data.Pages, hp)
	}

	var buf bytes.Buffer
	if err := htmlTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

func toHTMLBlock(blk Block) (htmlBlock, bool) {
	box := fmt.Sprintf("left:%.2fmm;top:%.2fmm;width:%.2fmm;", blk.X, blk.Y, blk.W)
	rgb := fmt.Sprintf("rgb(%d,%d,%d)", blk.Color.R, blk.Color.G, blk.Color.B)

	switch blk.Kind {
	case BlockText:
		weight := "normal"
		if blk.Font.Bold {
			weight = "bold"
		}
		align := map[Align]string{AlignLeft: "left", AlignCenter: "center", AlignRight: "right"}[blk.Align]
		style := box + fmt.Sprintf("height:%.2fmm;font-size:%.1fpt;line-height:%.2fmm;font-weight:%s;text-align:%s;color:%s;",
			blk.H, blk.Font.Size, blk.Font.LineHeight(), weight, align, rgb)
		return htmlBlock{Style: template.CSS(style), Lines: blk.Lines, Section: blk.Section}, true

	case BlockRect:
		if blk.W <= 0 {
			return htmlBlock{}, false
		}
		return htmlBlock{Style: template.CSS(box + fmt.Sprintf("height:%.2fmm;background:%s;", blk.H, rgb))}, true

	case BlockRule:
		return htmlBlock{Style: template.CSS(box + fmt.Sprintf("height:0;border-top:%.2fmm solid %s;", blk.H, rgb))}, true

	case BlockImage:
		mime := "image/jpeg"
		if blk.Image.Format == "PNG" {
			mime = "image/png"
		}
		src := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(blk.Image.Data)
		return htmlBlock{Style: template.CSS(box + fmt.Sprintf("height:%.2fmm;", blk.H)), Src: template.URL(src)}, true
	}

	return htmlBlock{}, false
}
