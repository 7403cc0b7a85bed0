package planimport

import (
	"context"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fx006/diet-train-app/docpipe"
	"github.com/fx006/diet-train-app/kit"
	"github.com/fx006/diet-train-app/sniff"
	"github.com/fx006/diet-train-app/validate"
)

// RegisterMCP registers the planimport tools on an MCP server.
func (im *Importer) RegisterMCP(srv *mcp.Server) {
	im.registerSniffTool(srv)
	im.registerParseTool(srv)
	im.registerFormatsTool(srv)
}

func (im *Importer) endpoint(name string, e kit.Endpoint) kit.Endpoint {
	if im.cfg.ToolMiddleware != nil {
		e = im.cfg.ToolMiddleware(name)(e)
	}
	return kit.Logging(im.logger, name)(e)
}

// --- sniff ---

type sniffReq struct {
	Path string `json:"path" jsonschema:"required" jsonschema_description:"Path of the .xlsx, .xls or .pdf file to check"`
}

func (im *Importer) registerSniffTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "planimport_sniff",
		Description: "Check whether a file is an acceptable diet/exercise plan upload (size, extension, magic bytes).",
		InputSchema: kit.InputSchema[sniffReq](),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		return im.Sniff(req.(*sniffReq).Path), nil
	}

	kit.RegisterMCPTool(srv, tool, im.endpoint(tool.Name, endpoint), kit.DecodeJSON[sniffReq]())
}

// --- parse ---

type parseReq struct {
	Path string `json:"path" jsonschema:"required" jsonschema_description:"Path of the plan file to parse"`
	Kind string `json:"kind,omitempty" jsonschema:"enum=general,enum=meal,enum=exercise" jsonschema_description:"Validation rule set; empty selects the configured default"`
	Rows bool   `json:"rows,omitempty" jsonschema_description:"Include the normalized rows in the response"`
}

type parseResp struct {
	FileType     sniff.FileType        `json:"file_type"`
	Sources      []docpipe.Source      `json:"sources"`
	HeaderFound  bool                  `json:"header_found"`
	ParsedRows   int                   `json:"parsed_rows"`
	Rows         any                   `json:"rows,omitempty"`
	Warnings     []string              `json:"warnings,omitempty"`
	Validation   *validate.Result      `json:"validation"`
	Completeness validate.Completeness `json:"completeness"`
	Meals        any                   `json:"meals"`
	Exercises    any                   `json:"exercises"`
}

func (im *Importer) registerParseTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "planimport_parse",
		Description: "Parse a plan file into meals and exercises and validate every row. Nothing is saved.",
		InputSchema: kit.InputSchema[parseReq](),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*parseReq)
		var kind validate.Kind
		if r.Kind != "" {
			k, err := validate.ParseKind(r.Kind)
			if err != nil {
				return nil, err
			}
			kind = k
		}
		insp, err := im.Inspect(ctx, r.Path, kind)
		if err != nil {
			return nil, err
		}
		resp := parseResp{
			FileType:     insp.Document.Type,
			Sources:      insp.Document.Sources,
			HeaderFound:  insp.Document.HeaderFound,
			ParsedRows:   len(insp.Document.Rows),
			Warnings:     insp.Document.Warnings,
			Validation:   insp.Validation,
			Completeness: insp.Completeness,
			Meals:        nonNil(insp.Items.Meals),
			Exercises:    nonNil(insp.Items.Exercises),
		}
		if r.Rows {
			resp.Rows = insp.Document.Rows
		}
		return resp, nil
	}

	kit.RegisterMCPTool(srv, tool, im.endpoint(tool.Name, endpoint), kit.DecodeJSON[parseReq]())
}

// --- formats ---

type formatsReq struct{}

func (im *Importer) registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "planimport_formats",
		Description: "List the accepted plan file formats and the upload size limit.",
		InputSchema: kit.InputSchema[formatsReq](),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		return SupportedFormats(im.cfg.MaxFileSize), nil
	}

	kit.RegisterMCPTool(srv, tool, im.endpoint(tool.Name, endpoint), kit.DecodeJSON[formatsReq]())
}

// FormatGroup lists the extensions of one file type.
type FormatGroup struct {
	Type       sniff.FileType `json:"type"`
	Extensions []string       `json:"extensions"`
	MIMETypes  []string       `json:"mime_types"`
}

// Formats is the supported-formats payload shared by HTTP and MCP.
type Formats struct {
	SupportedFormats []FormatGroup `json:"supported_formats"`
	MaxFileSize      int64         `json:"max_file_size"`
	MaxFileSizeHuman string        `json:"max_file_size_mb"`
}

// SupportedFormats groups the sniffer's extension table by file type.
func SupportedFormats(maxSize int64) Formats {
	var groups []FormatGroup
	idx := make(map[sniff.FileType]int)
	for _, f := range sniff.Formats {
		i, ok := idx[f.Type]
		if !ok {
			i = len(groups)
			idx[f.Type] = i
			groups = append(groups, FormatGroup{Type: f.Type})
		}
		groups[i].Extensions = append(groups[i].Extensions, f.Extension)
		groups[i].MIMETypes = append(groups[i].MIMETypes, f.MIME)
	}
	return Formats{
		SupportedFormats: groups,
		MaxFileSize:      maxSize,
		MaxFileSizeHuman: humanMB(maxSize),
	}
}

func humanMB(n int64) string {
	return strconv.FormatInt(n/(1024*1024), 10) + "MB"
}
