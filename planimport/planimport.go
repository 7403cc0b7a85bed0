// Package planimport runs one uploaded file through the whole pipeline:
// stage to a temp file, sniff, extract, validate, convert and persist.
//
// Every failure surfaces as one *ImportError with a stable Code. Validation
// problems are batched so a user can fix a file in one pass. The temp file
// is removed on every exit path, panics included.
package planimport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fx006/diet-train-app/docpipe"
	"github.com/fx006/diet-train-app/horosafe"
	"github.com/fx006/diet-train-app/kit"
	"github.com/fx006/diet-train-app/plan"
	"github.com/fx006/diet-train-app/sniff"
	"github.com/fx006/diet-train-app/store"
	"github.com/fx006/diet-train-app/validate"
)

// PlanSaver persists converted items with their ledger entry.
type PlanSaver interface {
	FindImportBySHA(ctx context.Context, sha string) (*store.ImportRecord, error)
	SaveImport(ctx context.Context, rec *store.ImportRecord, items plan.Items) (store.SaveResult, error)
}

// Config configures an Importer.
type Config struct {
	// UploadDir holds temp files while they are parsed (default: os.TempDir()).
	UploadDir string

	// MaxFileSize bounds an upload (default: 10 MiB).
	MaxFileSize int64

	// DefaultKind applies when Options.Kind is empty.
	DefaultKind validate.Kind

	Logger *slog.Logger

	// ToolMiddleware, if set, wraps each MCP tool endpoint inside the
	// logging middleware. It receives the tool name.
	ToolMiddleware func(tool string) kit.Middleware
}

// Options tune a single import.
type Options struct {
	Kind   validate.Kind
	DryRun bool
}

// Importer orchestrates imports. Safe for concurrent use.
type Importer struct {
	cfg    Config
	pipe   *docpipe.Pipeline
	saver  PlanSaver
	logger *slog.Logger
}

// New creates an Importer. saver may be nil, which makes every import a dry
// run.
func New(cfg Config, saver PlanSaver) (*Importer, error) {
	if cfg.UploadDir == "" {
		cfg.UploadDir = os.TempDir()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = sniff.DefaultMaxFileSize
	}
	if cfg.DefaultKind == "" {
		cfg.DefaultKind = validate.KindGeneral
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if err := horosafe.CheckPath(cfg.UploadDir); err != nil {
		return nil, fmt.Errorf("upload dir: %w", err)
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Importer{
		cfg:    cfg,
		pipe:   docpipe.New(docpipe.Config{MaxFileSize: cfg.MaxFileSize, Logger: cfg.Logger}),
		saver:  saver,
		logger: cfg.Logger,
	}, nil
}

// MaxFileSize returns the upload bound in bytes.
func (im *Importer) MaxFileSize() int64 { return im.cfg.MaxFileSize }

func (im *Importer) kind(k validate.Kind) validate.Kind {
	if k == "" {
		return im.cfg.DefaultKind
	}
	return k
}

// FileInfo describes the uploaded file.
type FileInfo struct {
	FileName string         `json:"filename"`
	FileType sniff.FileType `json:"file_type"`
	Size     int64          `json:"size"`
	SHA256   string         `json:"sha256"`
	MIME     string         `json:"mime,omitempty"`
}

// Report is the outcome of an import. It is also returned alongside a
// CodeDataValidation error, holding what the clean rows would produce.
type Report struct {
	ImportID     string                 `json:"import_id,omitempty"`
	Deduplicated bool                   `json:"deduplicated,omitempty"`
	DryRun       bool                   `json:"dry_run,omitempty"`
	FileInfo     FileInfo               `json:"file_info"`
	ParsedRows   int                    `json:"parsed_rows"`
	Sources      []docpipe.Source       `json:"sources,omitempty"`
	Meals        []plan.MealEntry       `json:"meals"`
	Exercises    []plan.ExerciseEntry   `json:"exercises"`
	Saved        *store.SaveResult      `json:"saved_data,omitempty"`
	Warnings     []string               `json:"warnings"`
	Validation   *validate.Result       `json:"validation,omitempty"`
	Completeness *validate.Completeness `json:"completeness,omitempty"`
}

// Inspection is what the pipeline makes of one file, before persistence.
type Inspection struct {
	Document     *docpipe.Document     `json:"document"`
	Validation   *validate.Result      `json:"validation"`
	Completeness validate.Completeness `json:"completeness"`
	Items        plan.Items            `json:"items"`
}

// Sniff checks the file at path without parsing it.
func (im *Importer) Sniff(path string) sniff.Result {
	return im.pipe.Detect(path)
}

// Inspect sniffs, extracts and validates the file at path. Rows with
// validation errors are left out of Items. A failed validation is reported
// in the Inspection, not as an error.
func (im *Importer) Inspect(ctx context.Context, path string, kind validate.Kind) (*Inspection, error) {
	res := im.pipe.Detect(path)
	if !res.Valid {
		return nil, importErr(CodeFileValidation, nil, "%s", res.Error)
	}
	return im.inspect(ctx, path, res, im.kind(kind))
}

func (im *Importer) inspect(ctx context.Context, path string, res sniff.Result, kind validate.Kind) (*Inspection, error) {
	doc, err := im.pipe.Parse(ctx, path, res.Type)
	if err != nil {
		var pe *docpipe.ParseError
		if errors.As(err, &pe) {
			return nil, importErr(CodeFileParse, err, "%s", pe.Error())
		}
		return nil, importErr(CodeInternal, err, "extract %s: %v", res.Type, err)
	}
	if res.MIMEMismatch {
		doc.Warnings = append(doc.Warnings, "file MIME type "+res.MIME+" does not match its extension")
	}

	result := validate.Rows(doc.Rows, kind)
	bad := result.ErrorRows()
	clean := make([]plan.Row, 0, len(doc.Rows))
	for _, r := range doc.Rows {
		if !bad[r.Index] {
			clean = append(clean, r)
		}
	}

	fields := validate.RecommendedFields(kind)
	if len(fields) == 0 {
		fields = []plan.Field{plan.FieldDate}
	}
	return &Inspection{
		Document:     doc,
		Validation:   result,
		Completeness: validate.CheckCompleteness(doc.Rows, fields),
		Items:        plan.Convert(clean),
	}, nil
}

// ImportFile reads one upload from r and runs it through the pipeline. name
// is the client file name and only its extension and base name are used.
//
// On CodeDataValidation both a Report (built from the clean rows, never
// persisted) and the error are returned. Content already imported is not
// inserted again: the earlier import comes back with Deduplicated set.
func (im *Importer) ImportFile(ctx context.Context, name string, r io.Reader, opts Options) (rep *Report, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			im.logger.Error("import panic", "file", name, "panic", rec, "request_id", kit.GetRequestID(ctx))
			rep, err = nil, importErr(CodeInternal, nil, "unexpected failure: %v", rec)
		}
	}()

	kind := im.kind(opts.Kind)
	base := horosafe.BaseName(name)
	if base == "" {
		return nil, importErr(CodeFileValidation, nil, "file name is required")
	}
	ext := strings.ToLower(filepath.Ext(base))
	if !sniff.SupportedExtension(base) {
		return nil, importErr(CodeFileValidation, nil, "unsupported file type %q (supported: %s)",
			ext, strings.Join(sniff.Extensions(), ", "))
	}

	tmp, err := os.CreateTemp(im.cfg.UploadDir, "upload-*"+ext)
	if err != nil {
		return nil, importErr(CodeInternal, err, "stage upload: %v", err)
	}
	path := tmp.Name()
	defer os.Remove(path)

	h := sha256.New()
	size, err := horosafe.LimitedCopy(io.MultiWriter(tmp, h), r, im.cfg.MaxFileSize)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if errors.Is(err, horosafe.ErrTooLarge) {
			return nil, importErr(CodeFileValidation, err, "file exceeds the size limit (%d bytes)", im.cfg.MaxFileSize)
		}
		return nil, importErr(CodeInternal, err, "stage upload: %v", err)
	}

	info := FileInfo{FileName: base, Size: size, SHA256: hex.EncodeToString(h.Sum(nil))}
	log := im.logger.With("file", base, "size", size, "request_id", kit.GetRequestID(ctx))

	res := im.pipe.Detect(path)
	if !res.Valid {
		log.Info("upload rejected", "reason", res.Error)
		return nil, importErr(CodeFileValidation, nil, "%s", res.Error)
	}
	info.FileType, info.MIME = res.Type, res.MIME

	persist := !opts.DryRun && im.saver != nil
	if persist {
		if prev, err := im.previous(ctx, info); prev != nil || err != nil {
			return prev, err
		}
	}

	insp, err := im.inspect(ctx, path, res, kind)
	if err != nil {
		log.Info("upload not parsed", "error", err)
		return nil, err
	}

	rep = &Report{
		DryRun:     !persist,
		FileInfo:   info,
		ParsedRows: len(insp.Document.Rows),
		Sources:    insp.Document.Sources,
		Meals:      nonNil(insp.Items.Meals),
		Exercises:  nonNil(insp.Items.Exercises),
		Warnings:   append(append([]string{}, insp.Document.Warnings...), insp.Validation.Warnings...),
		Validation: insp.Validation,
	}
	rep.Completeness = &insp.Completeness

	if !insp.Validation.IsValid() {
		log.Info("upload failed validation", "errors", len(insp.Validation.Errors))
		return rep, &ImportError{
			Code:       CodeDataValidation,
			Message:    insp.Validation.Summary(),
			Validation: insp.Validation,
		}
	}
	if !persist {
		log.Info("import checked", "meals", len(rep.Meals), "exercises", len(rep.Exercises), "dry_run", true)
		return rep, nil
	}

	body, err := json.Marshal(rep)
	if err != nil {
		return nil, importErr(CodeInternal, err, "encode report: %v", err)
	}
	rec := &store.ImportRecord{
		FileName:   info.FileName,
		SHA256:     info.SHA256,
		FileType:   string(info.FileType),
		Kind:       string(kind),
		ParsedRows: rep.ParsedRows,
		Report:     body,
	}
	saved, err := im.saver.SaveImport(ctx, rec, insp.Items)
	if err != nil {
		// A concurrent upload of the same content may have won the race.
		if prev, perr := im.previous(ctx, info); prev != nil && perr == nil {
			return prev, nil
		}
		return nil, importErr(CodeInternal, err, "save plans: %v", err)
	}
	rep.ImportID = rec.ID
	rep.Saved = &saved

	log.Info("import saved", "import_id", rec.ID, "meals", saved.MealsSaved, "exercises", saved.ExercisesSaved)
	return rep, nil
}

// previous returns the report of an earlier import with the same content,
// or nil.
func (im *Importer) previous(ctx context.Context, info FileInfo) (*Report, error) {
	rec, err := im.saver.FindImportBySHA(ctx, info.SHA256)
	if err != nil {
		return nil, importErr(CodeInternal, err, "look up earlier import: %v", err)
	}
	if rec == nil {
		return nil, nil
	}
	rep := &Report{}
	if err := json.Unmarshal(rec.Report, rep); err != nil {
		im.logger.Warn("stored import report unreadable", "import_id", rec.ID, "error", err)
		rep = &Report{ParsedRows: rec.ParsedRows}
	}
	rep.ImportID = rec.ID
	rep.Deduplicated = true
	rep.DryRun = false
	rep.FileInfo = info
	rep.Saved = &store.SaveResult{DatesAffected: []string{}}
	rep.Meals = nonNil(rep.Meals)
	rep.Exercises = nonNil(rep.Exercises)
	rep.Warnings = append(rep.Warnings, fmt.Sprintf("identical content was already imported as %s; nothing was saved", rec.ID))
	im.logger.Info("duplicate upload", "file", info.FileName, "import_id", rec.ID)
	return rep, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
