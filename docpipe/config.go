package docpipe

import (
	"log/slog"

	"github.com/fx006/diet-train-app/fields"
	"github.com/fx006/diet-train-app/sniff"
)

// Config configures the extraction pipeline.
type Config struct {
	// MaxFileSize is the upper bound enforced by the sniffer (default: 10 MiB).
	MaxFileSize int64 `json:"max_file_size" yaml:"max_file_size"`

	// Mapper classifies header cells. Nil selects the default keyword table.
	Mapper *fields.Mapper `json:"-" yaml:"-"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = sniff.DefaultMaxFileSize
	}
	if c.Mapper == nil {
		c.Mapper = fields.New(nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
