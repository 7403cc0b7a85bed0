// Package sniff decides whether an uploaded file is a workbook or a page
// document from its bytes, not its name.
//
// Checks run in a fixed order and the first failure wins:
//
//	path characters → existence → size → permissions → extension → magic bytes
//
// A MIME cross-check runs last and is advisory only.
package sniff

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fx006/diet-train-app/horosafe"
)

// FileType is the detected document family.
type FileType string

const (
	TypeExcel FileType = "excel"
	TypePDF   FileType = "pdf"
)

const (
	// MinFileSize rejects truncated or placeholder files.
	MinFileSize = 100
	// DefaultMaxFileSize bounds the work a single upload can cause.
	DefaultMaxFileSize = 10 * 1024 * 1024
	// headerSize is how many leading bytes are compared to signatures.
	headerSize = 8
)

// Format describes one accepted extension.
type Format struct {
	Extension string   `json:"extension"`
	Type      FileType `json:"type"`
	MIME      string   `json:"mime"`
	Magic     [][]byte `json:"-"`
}

var (
	magicZIP = []byte("PK\x03\x04")
	magicOLE = []byte("\xd0\xcf\x11\xe0\xa1\xb1\x1a\xe1")
	magicPDF = []byte("%PDF")
)

// Formats is the fixed extension table.
var Formats = []Format{
	{".xlsx", TypeExcel, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", [][]byte{magicZIP, magicOLE}},
	{".xls", TypeExcel, "application/vnd.ms-excel", [][]byte{magicZIP, magicOLE}},
	{".pdf", TypePDF, "application/pdf", [][]byte{magicPDF}},
}

// mimeAliases lists MIME types a correct file of a given type may sniff as.
var mimeAliases = map[FileType][]string{
	TypeExcel: {
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel",
		"application/x-ole-storage",
		"application/zip",
	},
	TypePDF: {"application/pdf"},
}

// Result is the outcome of Detect. Error is empty when Valid is true.
type Result struct {
	Valid        bool     `json:"is_valid"`
	Type         FileType `json:"file_type,omitempty"`
	Error        string   `json:"error,omitempty"`
	MIME         string   `json:"mime,omitempty"`
	MIMEMismatch bool     `json:"mime_mismatch,omitempty"`
}

func reject(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Sniffer runs the detection checks.
type Sniffer struct {
	maxSize int64
	logger  *slog.Logger
}

// Option configures a Sniffer.
type Option func(*Sniffer)

// WithMaxSize overrides the upper size bound.
func WithMaxSize(n int64) Option {
	return func(s *Sniffer) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

// WithLogger sets the logger used for advisory MIME mismatches.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sniffer) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a Sniffer with the default 10 MiB bound.
func New(opts ...Option) *Sniffer {
	s := &Sniffer{maxSize: DefaultMaxFileSize}
	for _, o := range opts {
		o(s)
	}
	return s
}

// MaxSize returns the configured upper size bound.
func (s *Sniffer) MaxSize() int64 { return s.maxSize }

// Detect checks the file at path. Expected failures are reported in the
// Result, never as a panic.
func (s *Sniffer) Detect(path string) Result {
	if err := horosafe.CheckPath(path); err != nil {
		return reject("unsafe file path: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return reject("file does not exist")
		}
		return reject("cannot stat file: %v", err)
	}
	if !info.Mode().IsRegular() {
		return reject("not a regular file")
	}
	if r := s.checkSize(info.Size()); !r.Valid {
		return r
	}
	if info.Mode().Perm()&0o111 != 0 {
		return reject("file has execute permission set")
	}

	format, ok := lookup(path)
	if !ok {
		return reject("unsupported file extension %q", filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return reject("file is not readable: %v", err)
	}
	defer f.Close()

	head := make([]byte, headerSize)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return reject("file is not readable: %v", err)
	}
	if !hasMagic(head[:n], format.Magic) {
		return reject("file content does not match %s signature", format.Extension)
	}

	res := Result{Valid: true, Type: format.Type}
	if mt, err := mimetype.DetectFile(path); err == nil {
		s.crossCheck(&res, mt, path)
	}
	return res
}

// DetectBytes applies the size, extension and signature checks to an
// in-memory upload named name.
func (s *Sniffer) DetectBytes(name string, data []byte) Result {
	if err := horosafe.CheckPath(name); err != nil {
		return reject("unsafe file path: %v", err)
	}
	if r := s.checkSize(int64(len(data))); !r.Valid {
		return r
	}
	format, ok := lookup(name)
	if !ok {
		return reject("unsupported file extension %q", filepath.Ext(name))
	}
	if !hasMagic(data, format.Magic) {
		return reject("file content does not match %s signature", format.Extension)
	}
	res := Result{Valid: true, Type: format.Type}
	s.crossCheck(&res, mimetype.Detect(data), name)
	return res
}

func (s *Sniffer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Sniffer) checkSize(size int64) Result {
	if size < MinFileSize {
		return reject("file too small: %d bytes (min %d)", size, MinFileSize)
	}
	if size > s.maxSize {
		return reject("file too large: %d bytes (max %d)", size, s.maxSize)
	}
	return Result{Valid: true}
}

func (s *Sniffer) crossCheck(res *Result, mt *mimetype.MIME, name string) {
	if mt == nil {
		return
	}
	res.MIME = mt.String()
	for m := mt; m != nil; m = m.Parent() {
		for _, want := range mimeAliases[res.Type] {
			if m.Is(want) {
				return
			}
		}
	}
	res.MIMEMismatch = true
	s.log().Debug("sniff: mime mismatch", "path", name, "type", res.Type, "mime", res.MIME)
}

func lookup(path string) (Format, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, f := range Formats {
		if f.Extension == ext {
			return f, true
		}
	}
	return Format{}, false
}

func hasMagic(head []byte, sigs [][]byte) bool {
	for _, sig := range sigs {
		if bytes.HasPrefix(head, sig) {
			return true
		}
	}
	return false
}

// Extensions lists the accepted extensions.
func Extensions() []string {
	out := make([]string, len(Formats))
	for i, f := range Formats {
		out[i] = f.Extension
	}
	return out
}

// SupportedExtension reports whether name has an accepted extension.
func SupportedExtension(name string) bool {
	_, ok := lookup(name)
	return ok
}

var defaultSniffer = New()

// Detect checks path with the default Sniffer.
func Detect(path string) Result { return defaultSniffer.Detect(path) }
