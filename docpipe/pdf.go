package docpipe

import (
	"context"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/fx006/diet-train-app/normalize"
	"github.com/fx006/diet-train-app/sniff"
)

// parsePDF extracts rows page by page. Column-aligned tables contribute
// their table rows and every other line goes through the line parser.
// Record state never carries across pages.
func (p *Pipeline) parsePDF(ctx context.Context, path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, parseErr(sniff.TypePDF, "cannot open document", err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, parseErr(sniff.TypePDF, "cannot read document", err)
	}

	doc := &Document{Path: path, Type: sniff.TypePDF, PageCount: pctx.PageCount}
	var (
		all       strings.Builder
		textPages int
	)
	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text := extractPageText(pctx, pageNr)
		if strings.TrimSpace(text) == "" {
			continue
		}
		textPages++
		if all.Len() > 0 {
			all.WriteByte('\n')
		}
		all.WriteString(text)

		if err := p.pageRows(ctx, doc, pageNr, text); err != nil {
			return nil, err
		}
	}

	fullText := all.String()
	q := &ExtractionQuality{
		PageCount:       pctx.PageCount,
		TextPages:       textPages,
		PrintableRatio:  computePrintableRatio(fullText),
		HasImageStreams: detectImageStreams(pctx),
	}
	if pctx.PageCount > 0 {
		q.CharsPerPage = float64(utf8.RuneCountInString(fullText)) / float64(pctx.PageCount)
	}
	doc.Quality = q

	if textPages == 0 {
		if q.HasImageStreams {
			return nil, parseErr(sniff.TypePDF, "no text layer; the document looks scanned and needs OCR", ErrNoData)
		}
		return nil, parseErr(sniff.TypePDF, "no text content found", ErrNoData)
	}
	if q.NeedsOCR() {
		doc.Warnings = append(doc.Warnings, "extracted text looks incomplete or garbled; the document may need OCR")
	}
	return doc, nil
}

// pageRows adds one page's rows to doc. Table blocks go through the grid
// mapper; the lines around them go through the line parser, whose date
// carries over a table but not onto the next page.
func (p *Pipeline) pageRows(ctx context.Context, doc *Document, pageNr int, text string) error {
	lines := strings.Split(text, "\n")
	tables := p.findTables(lines)

	var (
		lp   lineParser
		next int
	)
	emitLines := func() {
		if rows := lp.finish(); len(rows) > 0 {
			doc.addSource(SourcePDFText)
			doc.appendRows(rows...)
		}
	}
	for _, t := range tables {
		for ; next < t.first; next++ {
			lp.feed(lines[next])
		}
		emitLines()

		rows, _, err := p.rowsFromGrid(ctx, t.grid, gridOptions{style: normalize.Collapse, mapping: t.mapping})
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			doc.HeaderFound = true
			doc.addSource(SourcePDFTable)
			doc.appendRows(rows...)
		}
		next = t.last + 1
	}
	for ; next < len(lines); next++ {
		lp.feed(lines[next])
	}
	emitLines()

	p.logger.Debug("pdf page parsed", "page", pageNr, "tables", len(tables), "rows", len(doc.Rows))
	return nil
}

// extractPageText renders one page's content stream as text lines.
func extractPageText(ctx *model.Context, pageNr int) string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return pageText(data, pageFonts(ctx, pageNr))
}

// detectImageStreams reports whether the document holds image XObjects.
func detectImageStreams(ctx *model.Context) bool {
	if ctx.Optimize != nil {
		for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
			if len(pdfcpu.ImageObjNrs(ctx, pageNr)) > 0 {
				return true
			}
		}
	}
	for _, entry := range ctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}
