package report

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path"
	"sort"
	"strings"
	"time"

	"tradeproof/internal/anchor"
	"tradeproof/internal/geo"
	"tradeproof/internal/hashing"
	"tradeproof/internal/score"
	"tradeproof/pkg/types"

	"github.com/sirupsen/logrus"
)

const (
	dateFormat     = "2 Jan 2006"
	dateTimeFormat = "2 Jan 2006 15:04:05 MST"
)

var (
	fontTitle  = Font{Size: 24, Bold: true}
	fontH1     = Font{Size: 18, Bold: true}
	fontH2     = Font{Size: 14, Bold: true}
	fontH3     = Font{Size: 11, Bold: true}
	fontBody   = Font{Size: 10}
	fontDetail = Font{Size: 9}
	fontFooter = Font{Size: 8}
	rasterExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}
)

var highlights = []string{
	"Every file is bound to a SHA-256 fingerprint computed before it was stored.",
	"Server timestamps are recorded independently of the capturing device clock.",
	"File fingerprints are submitted to the OpenTimestamps network for anchoring in the Bitcoin blockchain.",
	"GPS coordinates are preserved exactly as captured on site.",
	"Client approvals and signatures are stored alongside the evidence they refer to.",
}

type legalSection struct {
	title string
	body  string
}

var legalSections = []legalSection{
	{
		title: "Declaration of Authenticity",
		body: "The issuer declares that the photographs, documents and notes in this report were captured during the course of the work described and have not been altered since capture. " +
			"Each file's SHA-256 fingerprint was calculated from the exact bytes received by the platform before storage.",
	},
	{
		title: "Verification Method",
		body: "Any file listed in this report can be verified by recomputing its SHA-256 fingerprint and comparing it with the value printed against the item. " +
			"Where an item shows a blockchain timestamp, the accompanying OpenTimestamps proof can be checked independently at " + anchor.VerifyURL +
			" to confirm the fingerprint existed no later than the time recorded in the Bitcoin blockchain.",
	},
	{
		title: "Admissibility",
		body: "This report is a record of evidence supplied by the issuer. It does not constitute legal advice, and its weight in any dispute or proceeding is a matter for the relevant tribunal or court. " +
			"Items pending a blockchain timestamp remain protected by their server timestamp and content fingerprint.",
	},
	{
		title: "Signature Responsibility",
		body: "Client approvals and signatures are recorded as submitted through the issuer's device. " +
			"The issuer is responsible for ensuring that each signature was given by the named client or an authorised representative.",
	},
}

// ImageLoader fetches the stored file behind an evidence item.
type ImageLoader interface {
	LoadImage(ctx context.Context, item *types.EvidenceItem) ([]byte, error)
}

type Input struct {
	Job         *types.Job
	Evidence    []*types.EvidenceItem
	Issuer      types.IssuerProfile
	GeneratedAt time.Time
}

type Assembler struct {
	measure Measurer
	images  ImageLoader
	brand   string
	logger  logrus.FieldLogger
}

func NewAssembler(measure Measurer, images ImageLoader, brand string, logger logrus.FieldLogger) *Assembler {
	return &Assembler{
		measure: measure,
		images:  images,
		brand:   brand,
		logger:  logger,
	}
}

// ReportID derives the display id of a job's reports.
func ReportID(jobID string) string {
	id := strings.ReplaceAll(jobID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return "RPT-" + strings.ToUpper(id)
}

// Assemble lays out every page of the report, then stamps the footers. The
// footer pass needs the final page count, so it always runs last.
func (a *Assembler) Assemble(ctx context.Context, in Input) (*Document, error) {

	if in.Job == nil {
		return nil, types.ErrJobNotFound
	}

	generated := in.GeneratedAt.UTC()
	b := &builder{
		a: a,
		doc: &Document{
			ReportID:    ReportID(in.Job.ID),
			Title:       fmt.Sprintf("Evidence Report - %s", in.Job.ClientName),
			GeneratedAt: generated,
			Brand:       a.brand,
		},
	}

	items := orderEvidence(in.Evidence)

	b.cover(in, generated)
	b.summary(items)
	if err := b.evidence(ctx, items); err != nil {
		return nil, err
	}
	b.legal()

	ApplyFooters(b.doc)
	return b.doc, nil

}

// orderEvidence returns items grouped by type in section order, oldest first
// within each type.
func orderEvidence(items []*types.EvidenceItem) []*types.EvidenceItem {
	rank := make(map[types.EvidenceType]int, len(types.EvidenceTypes))
	for i, t := range types.EvidenceTypes {
		rank[t] = i
	}

	out := make([]*types.EvidenceItem, 0, len(items))
	for _, item := range items {
		if item != nil && item.EvidenceType.Valid() {
			out = append(out, item)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].EvidenceType != out[j].EvidenceType {
			return rank[out[i].EvidenceType] < rank[out[j].EvidenceType]
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

type builder struct {
	a    *Assembler
	doc  *Document
	page *Page
	y    float64
}

// group is a set of blocks positioned relative to its own top edge.
type group struct {
	blocks []Block
	height float64
}

func (g *group) add(blk Block) {
	blk.Y += g.height
	g.blocks = append(g.blocks, blk)
	g.height += blk.H
}

func (g *group) space(h float64) {
	g.height += h
}

func (g *group) tag(itemID string) {
	for i := range g.blocks {
		g.blocks[i].ItemID = itemID
	}
}

func (b *builder) newPage() {
	b.page = &Page{Number: len(b.doc.Pages) + 1}
	b.doc.Pages = append(b.doc.Pages, b.page)
	b.y = ContentTop
}

// place puts a group on the current page, starting a new page first when the
// group does not fit in the space left. A group taller than a whole page is
// still placed in one piece at the top of a fresh page.
func (b *builder) place(g group) {
	if b.page == nil || (g.height > ContentBottom-b.y && b.y > ContentTop) {
		b.newPage()
	}

	for _, blk := range g.blocks {
		blk.Y += b.y
		b.page.Blocks = append(b.page.Blocks, blk)
	}
	b.y += g.height
}

func (b *builder) wrap(text string, font Font, width float64) []string {
	return WrapParagraphs(text, width, func(s string) float64 {
		return b.a.measure.TextWidth(s, font)
	})
}

func (b *builder) textBlock(text string, font Font, color Color, x, width float64) Block {
	lines := b.wrap(text, font, width)
	return Block{
		Kind:  BlockText,
		X:     x,
		W:     width,
		H:     float64(len(lines)) * font.LineHeight(),
		Lines: lines,
		Font:  font,
		Align: AlignLeft,
		Color: color,
	}
}

func (b *builder) line(text string, font Font, color Color) Block {
	return b.textBlock(text, font, color, Margin, ContentWidth)
}

func rule(width float64) Block {
	return Block{Kind: BlockRule, X: Margin, W: width, H: 0.3, Color: colorRule}
}

func (b *builder) cover(in Input, generated time.Time) {
	b.newPage()

	issuer := in.Issuer
	var g group
	name := issuer.DisplayName()
	if name == "" {
		name = b.a.brand
	}
	g.add(b.line(name, fontH2, colorBrand))
	for _, l := range []string{
		issuer.ContactName,
		issuer.Email,
		issuer.Phone,
		issuer.Address,
		prefixed("Licence: ", issuer.LicenseNumber),
	} {
		if l != "" && l != name {
			g.add(b.line(l, fontDetail, colorMuted))
		}
	}
	b.place(g)

	g = group{}
	g.space(30)
	g.add(b.line("Evidence & Compliance Report", fontTitle, colorText))
	g.add(b.line("Job documentation with cryptographic integrity verification", fontBody, colorMuted))
	g.space(4)
	g.add(rule(ContentWidth))
	g.space(4)
	g.add(b.line("Report ID: "+b.doc.ReportID, fontH3, colorText))
	g.add(b.line("Generated: "+generated.Format(dateTimeFormat), fontBody, colorText))
	b.place(g)

	job := in.Job
	g = group{}
	g.space(16)
	g.add(b.line("Client Information", fontH2, colorBrand))
	g.space(2)
	g.add(b.line("Client: "+job.ClientName, fontBody, colorText))
	if job.ClientPhone != nil && *job.ClientPhone != "" {
		g.add(b.line("Phone: "+*job.ClientPhone, fontBody, colorText))
	}
	if job.ClientAddress != nil && *job.ClientAddress != "" {
		g.add(b.line("Address: "+*job.ClientAddress, fontBody, colorText))
	}
	g.add(b.line("Job type: "+job.JobType.Label(), fontBody, colorText))
	if job.ContractValue != nil {
		g.add(b.line(fmt.Sprintf("Contract value: £%.2f", *job.ContractValue), fontBody, colorText))
	}
	if job.StartDate != nil {
		g.add(b.line("Start date: "+job.StartDate.Format(dateFormat), fontBody, colorText))
	}
	if job.CompletionDate != nil {
		g.add(b.line("Completion date: "+job.CompletionDate.Format(dateFormat), fontBody, colorText))
	}
	if job.Description != nil && *job.Description != "" {
		g.space(2)
		g.add(b.line(*job.Description, fontBody, colorMuted))
	}
	b.place(g)
}

func (b *builder) summary(items []*types.EvidenceItem) {
	b.newPage()

	var withFile, anchored, gps, approvals, signed int
	for _, item := range items {
		if item.HasFile() {
			withFile++
		}
		if item.IsAnchored() {
			anchored++
		}
		if item.HasGPS() {
			gps++
		}
		if item.ClientApproval != nil && *item.ClientApproval {
			approvals++
		}
		if item.IsSignedApproval() {
			signed++
		}
	}

	factors := score.Breakdown(items)
	status := factors.Total

	var g group
	g.add(b.line("Executive Summary", fontH1, colorText))
	g.space(4)
	g.add(b.line(fmt.Sprintf("Total evidence items: %d", len(items)), fontBody, colorText))
	g.add(b.line(fmt.Sprintf("Files with SHA-256 fingerprint: %d", withFile), fontBody, colorText))
	g.add(b.line(fmt.Sprintf("Blockchain timestamped: %d (pending: %d)", anchored, withFile-anchored), fontBody, colorText))
	g.add(b.line(fmt.Sprintf("GPS tagged: %d", gps), fontBody, colorText))
	g.add(b.line(fmt.Sprintf("Client approvals: %d (signed: %d)", approvals, signed), fontBody, colorText))
	g.space(3)
	g.add(b.line(fmt.Sprintf("Protection status: %d/100 (%s)", status, score.Label(status)), fontH3, statusColor(status)))
	g.add(b.line("Location: "+geo.Summarize(items).Describe(), fontBody, colorText))
	b.place(g)

	g = group{}
	g.space(8)
	g.add(b.line("Evidence by Type", fontH2, colorBrand))
	g.space(2)
	b.place(g)
	b.bars(factors.Counts, len(items))

	g = group{}
	g.space(8)
	g.add(b.line("Highlights", fontH2, colorBrand))
	g.space(2)
	for _, h := range highlights {
		g.add(b.textBlock("• "+h, fontBody, colorText, Margin+2, ContentWidth-2))
		g.space(1)
	}
	b.place(g)
}

// BarWidth is the length of a type's bar: its share of all items times the
// maximum bar width.
func BarWidth(count, total int) float64 {
	if total <= 0 || count <= 0 {
		return 0
	}
	return float64(count) / float64(total) * MaxBarWidth
}

func (b *builder) bars(counts map[types.EvidenceType]int, total int) {
	const labelWidth = 55.0
	rowHeight := fontBody.LineHeight() + 1.5

	var g group
	for _, t := range types.EvidenceTypes {
		count := counts[t]
		top := g.height

		g.blocks = append(g.blocks,
			Block{Kind: BlockText, X: Margin, Y: top, W: labelWidth, H: fontBody.LineHeight(), Lines: []string{t.Label()}, Font: fontBody, Align: AlignLeft, Color: colorText},
			Block{Kind: BlockRect, X: Margin + labelWidth, Y: top + 0.8, W: BarWidth(count, total), H: fontBody.LineHeight() - 1.6, Color: colorBar},
			Block{Kind: BlockText, X: Margin + labelWidth + MaxBarWidth + 3, Y: top, W: ContentWidth - labelWidth - MaxBarWidth - 3, H: fontBody.LineHeight(), Lines: []string{fmt.Sprintf("%d", count)}, Font: fontBody, Align: AlignRight, Color: colorText},
		)
		g.space(rowHeight)
	}
	b.place(g)
}

func (b *builder) evidence(ctx context.Context, items []*types.EvidenceItem) error {
	b.newPage()

	var g group
	g.add(b.line("Evidence Documentation", fontH1, colorText))
	g.space(4)
	b.place(g)

	if len(items) == 0 {
		g = group{}
		g.add(b.line("No evidence has been recorded for this job.", fontBody, colorMuted))
		b.place(g)
		return nil
	}

	seq := 0
	for i := 0; i < len(items); {
		t := items[i].EvidenceType
		j := i
		for j < len(items) && items[j].EvidenceType == t {
			j++
		}

		header := b.sectionHeader(t, j-i)
		for k, item := range items[i:j] {
			seq++
			laid, err := b.item(ctx, item, seq)
			if err != nil {
				return err
			}

			// Keep a heading on the same page as its first item.
			var lead group
			if k == 0 {
				lead = header
			}
			b.placeItem(lead, laid)
		}

		i = j
	}

	return nil
}

// concat stacks groups top to bottom.
func concat(groups ...group) group {
	var out group
	for _, g := range groups {
		for _, blk := range g.blocks {
			blk.Y += out.height
			out.blocks = append(out.blocks, blk)
		}
		out.height += g.height
	}
	return out
}

func (b *builder) sectionHeader(t types.EvidenceType, count int) group {
	var g group
	g.space(4)
	heading := b.line(fmt.Sprintf("%s (%d)", t.Label(), count), fontH2, colorBrand)
	heading.Section = string(t)
	g.add(heading)
	g.space(1)
	g.add(rule(ContentWidth))
	g.space(3)
	return g
}

type laidItem struct {
	text  group
	image group
}

// placeItem keeps an item's text and image on one page. Only an item taller
// than a whole page has its image moved to the next page, and even then the
// image itself is never split.
func (b *builder) placeItem(lead group, l laidItem) {
	whole := concat(lead, l.text, l.image)
	if whole.height <= ContentBottom-ContentTop {
		b.place(whole)
		return
	}

	b.place(concat(lead, l.text))
	if len(l.image.blocks) > 0 {
		b.place(l.image)
	}
}

func (b *builder) item(ctx context.Context, item *types.EvidenceItem, seq int) (laidItem, error) {
	var text group

	text.add(b.line(fmt.Sprintf("#%d Captured %s", seq, item.ServerTimestamp.UTC().Format(dateTimeFormat)), fontH3, colorText))
	text.add(b.textBlock(item.Description, fontBody, colorText, Margin, ContentWidth))
	text.space(1)

	for _, d := range b.details(item) {
		text.add(b.line(d.text, fontDetail, d.color))
	}
	text.space(3)
	text.tag(item.ID)

	var picture group
	if img, format, ok := b.loadImage(ctx, item); ok {
		picture.add(img.block(format))
		picture.space(3)
		picture.tag(item.ID)
	}

	return laidItem{text: text, image: picture}, ctx.Err()
}

type detail struct {
	text  string
	color Color
}

func (b *builder) details(item *types.EvidenceItem) []detail {
	var out []detail

	if item.FileHash != nil {
		out = append(out, detail{"SHA-256: " + hashing.Short(*item.FileHash), colorMuted})
	} else {
		out = append(out, detail{"No file attached (text evidence)", colorMuted})
	}

	switch {
	case item.IsAnchored() && item.AnchoredAt != nil:
		out = append(out, detail{"Blockchain timestamp: submitted " + item.AnchoredAt.UTC().Format(dateTimeFormat), colorSuccess})
	case item.IsAnchored():
		out = append(out, detail{"Blockchain timestamp: proof recorded", colorSuccess})
	case item.FileHash != nil:
		out = append(out, detail{"Blockchain timestamp: pending", colorPending})
	}

	if item.DeviceTimestamp != nil {
		out = append(out, detail{"Device time: " + item.DeviceTimestamp.UTC().Format(dateTimeFormat), colorMuted})
	}

	if r, ok := geo.FromEvidence(item); ok {
		out = append(out, detail{"GPS: " + geo.FormatReading(r), colorMuted})
	}

	if item.ClientApproval != nil {
		switch {
		case item.IsSignedApproval():
			out = append(out, detail{"Client approval: approved and signed", colorSuccess})
		case *item.ClientApproval:
			out = append(out, detail{"Client approval: approved", colorSuccess})
		default:
			out = append(out, detail{"Client approval: not approved", colorPending})
		}
	}

	return out
}

type sizedImage struct {
	data          []byte
	width, height int
}

func (s sizedImage) block(format string) Block {
	w := ImageWidth
	h := w * float64(s.height) / float64(s.width)
	if h > MaxImageHeight {
		h = MaxImageHeight
		w = h * float64(s.width) / float64(s.height)
	}

	return Block{
		Kind:  BlockImage,
		X:     Margin + (ContentWidth-w)/2,
		W:     w,
		H:     h,
		Image: &Image{Data: s.data, Format: format},
	}
}

// loadImage fetches and sniffs an item's file. Anything that cannot be shown
// is logged and skipped; the item's text still renders.
func (b *builder) loadImage(ctx context.Context, item *types.EvidenceItem) (sizedImage, string, bool) {
	if !item.HasFile() || b.a.images == nil {
		return sizedImage{}, "", false
	}

	name := *item.FilePath
	if item.FileName != nil && *item.FileName != "" {
		name = *item.FileName
	}
	if !rasterExts[strings.ToLower(path.Ext(name))] {
		return sizedImage{}, "", false
	}

	logger := b.a.logger.WithFields(logrus.Fields{
		"evidence_id": item.ID,
		"path":        *item.FilePath,
	})

	data, err := b.a.images.LoadImage(ctx, item)
	if err != nil {
		logger.WithError(err).Warn("skipping evidence image, fetch failed")
		return sizedImage{}, "", false
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width == 0 || cfg.Height == 0 {
		logger.WithError(err).Warn("skipping evidence image, not decodable")
		return sizedImage{}, "", false
	}

	pdfFormat := map[string]string{"jpeg": "JPG", "png": "PNG"}[format]
	if pdfFormat == "" {
		logger.WithField("format", format).Warn("skipping evidence image, unsupported format")
		return sizedImage{}, "", false
	}

	return sizedImage{data: data, width: cfg.Width, height: cfg.Height}, pdfFormat, true
}

func (b *builder) legal() {
	b.newPage()

	var g group
	g.add(b.line("Legal Declarations", fontH1, colorText))
	g.space(4)
	b.place(g)

	for _, s := range legalSections {
		g = group{}
		g.add(b.line(s.title, fontH3, colorText))
		g.space(1)
		g.add(b.textBlock(s.body, fontBody, colorText, Margin, ContentWidth))
		g.space(6)
		b.place(g)
	}

	g = group{}
	g.add(b.textBlock("Verification procedure: "+anchor.VerificationProcedure, fontDetail, colorMuted, Margin, ContentWidth))
	b.place(g)
}

// ApplyFooters stamps branding, report id, date and page numbering on every
// page. It runs once, after all content pages exist.
func ApplyFooters(doc *Document) {
	if doc.Footed {
		return
	}

	total := len(doc.Pages)
	top := ContentBottom + 4
	lh := fontFooter.LineHeight()
	third := ContentWidth / 3

	for i, p := range doc.Pages {
		p.Number = i + 1
		p.Blocks = append(p.Blocks,
			Block{Kind: BlockRule, X: Margin, Y: top, W: ContentWidth, H: 0.3, Color: colorRule},
			Block{Kind: BlockText, X: Margin, Y: top + 2, W: third, H: lh, Lines: []string{doc.Brand + " | " + doc.ReportID}, Font: fontFooter, Align: AlignLeft, Color: colorMuted},
			Block{Kind: BlockText, X: Margin + third, Y: top + 2, W: third, H: lh, Lines: []string{"Generated " + doc.GeneratedAt.Format(dateFormat)}, Font: fontFooter, Align: AlignCenter, Color: colorMuted},
			Block{Kind: BlockText, X: Margin + 2*third, Y: top + 2, W: third, H: lh, Lines: []string{fmt.Sprintf("Page %d of %d", i+1, total)}, Font: fontFooter, Align: AlignRight, Color: colorMuted},
		)
	}

	doc.Footed = true
}

func statusColor(status int) Color {
	switch {
	case status >= 80:
		return colorSuccess
	case status >= 50:
		return colorBar
	default:
		return colorPending
	}
}

func prefixed(prefix, value string) string {
	if value == "" {
		return ""
	}
	return prefix + value
}
