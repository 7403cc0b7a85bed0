package docpipe

import (
	"github.com/fx006/diet-train-app/plan"
	"github.com/fx006/diet-train-app/sniff"
)

// Source records which extraction path produced a document's rows.
type Source string

const (
	SourceSheet    Source = "sheet"
	SourcePDFTable Source = "pdf_table"
	SourcePDFText  Source = "pdf_text"
)

// Document is the result of extracting plan rows from a file.
type Document struct {
	Path        string             `json:"path"`
	Type        sniff.FileType     `json:"file_type"`
	Sheet       string             `json:"sheet,omitempty"`
	PageCount   int                `json:"page_count,omitempty"`
	HeaderFound bool               `json:"header_found"`
	Sources     []Source           `json:"sources"`
	Rows        []plan.Row         `json:"rows"`
	Quality     *ExtractionQuality `json:"quality,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
}

func (d *Document) addSource(s Source) {
	for _, have := range d.Sources {
		if have == s {
			return
		}
	}
	d.Sources = append(d.Sources, s)
}

// appendRows numbers rows 1-based in extraction order.
func (d *Document) appendRows(rows ...plan.Row) {
	for _, r := range rows {
		r.Index = len(d.Rows) + 1
		d.Rows = append(d.Rows, r)
	}
}
