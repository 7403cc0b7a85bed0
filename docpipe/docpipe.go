// Package docpipe extracts plan rows from uploaded workbooks and PDFs.
//
// Supported formats:
//   - .xlsx: Office Open XML workbook (excelize), active sheet only
//   - .xls: legacy BIFF workbook (extrame/xls), first sheet
//   - .pdf: page text via pdfcpu content streams; tables when the page text
//     is column aligned, otherwise line-based pattern matching
//
// Every file is sniffed before it is opened, so oversized or mislabeled
// files never reach a parser.
//
// Usage:
//
//	pipe := docpipe.New(docpipe.Config{})
//	doc, err := pipe.Extract(ctx, "/tmp/upload/plan.xlsx")
//	fmt.Println(len(doc.Rows), "rows")
package docpipe

import (
	"context"
	"log/slog"

	"github.com/fx006/diet-train-app/fields"
	"github.com/fx006/diet-train-app/plan"
	"github.com/fx006/diet-train-app/sniff"
)

// Pipeline is the extraction engine. It holds no per-file state and is safe
// for concurrent use.
type Pipeline struct {
	cfg     Config
	sniffer *sniff.Sniffer
	mapper  *fields.Mapper
	logger  *slog.Logger
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:     cfg,
		sniffer: sniff.New(sniff.WithMaxSize(cfg.MaxFileSize), sniff.WithLogger(cfg.Logger)),
		mapper:  cfg.Mapper,
		logger:  cfg.Logger,
	}
}

// Detect sniffs the file at path.
func (p *Pipeline) Detect(path string) sniff.Result {
	return p.sniffer.Detect(path)
}

// Extract sniffs path and parses it. A rejected file returns *FileError,
// an extraction failure *ParseError.
func (p *Pipeline) Extract(ctx context.Context, path string) (*Document, error) {
	res := p.Detect(path)
	if !res.Valid {
		return nil, &FileError{Path: path, Reason: res.Error}
	}
	doc, err := p.Parse(ctx, path, res.Type)
	if err != nil {
		return nil, err
	}
	if res.MIMEMismatch {
		doc.Warnings = append(doc.Warnings, "file MIME type "+res.MIME+" does not match its extension")
	}
	return doc, nil
}

// Parse extracts rows from a file already sniffed as typ.
func (p *Pipeline) Parse(ctx context.Context, path string, typ sniff.FileType) (*Document, error) {
	p.logger.Debug("extracting document", "path", path, "type", typ)

	var (
		doc *Document
		err error
	)
	switch typ {
	case sniff.TypeExcel:
		doc, err = p.parseWorkbook(ctx, path)
	case sniff.TypePDF:
		doc, err = p.parsePDF(ctx, path)
	default:
		return nil, parseErr(typ, "no parser for file type", nil)
	}
	if err != nil {
		return nil, err
	}
	if len(doc.Rows) == 0 {
		return nil, parseErr(typ, "document contains no plan data", ErrNoData)
	}

	p.logger.Debug("extracted document", "path", path, "rows", len(doc.Rows), "sources", doc.Sources)
	return doc, nil
}

// SupportedFormats returns all supported file extensions without the dot.
func SupportedFormats() []string {
	exts := sniff.Extensions()
	out := make([]string, len(exts))
	for i, e := range exts {
		out[i] = e[1:]
	}
	return out
}

// ParseTabular extracts the rows of a workbook already known to be valid.
func (p *Pipeline) ParseTabular(ctx context.Context, path string) ([]plan.Row, error) {
	doc, err := p.Parse(ctx, path, sniff.TypeExcel)
	if err != nil {
		return nil, err
	}
	return doc.Rows, nil
}

// ParsePDF extracts the rows of a PDF already known to be valid.
func (p *Pipeline) ParsePDF(ctx context.Context, path string) ([]plan.Row, error) {
	doc, err := p.Parse(ctx, path, sniff.TypePDF)
	if err != nil {
		return nil, err
	}
	return doc.Rows, nil
}
