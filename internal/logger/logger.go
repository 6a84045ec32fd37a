// Package logger builds the process-wide zap logger.
package logger

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log formats
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config configures the logger.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// ApplyDefaults fills in default values for unset fields
func (c *Config) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = FormatConsole
	}
	if c.Output == nil {
		c.Output = os.Stderr
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	if c.Format != FormatJSON && c.Format != FormatConsole {
		return fmt.Errorf("logger: invalid format: %s", c.Format)
	}
	return nil
}

// New builds a logger writing at level in the given format to stderr.
func New(level, format string) (*zap.Logger, error) {
	return Build(Config{Level: level, Format: format})
}

// Build builds a logger from c.
func Build(c Config) (*zap.Logger, error) {
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	lvl, _ := zapcore.ParseLevel(c.Level)

	var enc zapcore.Encoder
	if c.Format == FormatJSON {
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(c.Output)), lvl)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
