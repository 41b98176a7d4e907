// Package cli holds the pieces shared by the Nexus Health executables:
// building observability from the configuration tree and printing
// colorized status lines for humans.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/owulveryck/nexushealth/internal/config"
	"github.com/owulveryck/nexushealth/internal/observability"
)

// ShutdownTimeout bounds flushing of telemetry when a command exits.
const ShutdownTimeout = 5 * time.Second

// Observe installs the otel providers for service and returns the process
// logger. healthPort is recorded for the resource only; serving it is up
// to the caller.
func Observe(ctx context.Context, service, healthPort string, svc config.ServiceConfig) (*observability.Observability, error) {
	cfg := observability.DefaultConfig(service)
	cfg.ServiceVersion = svc.Version
	cfg.Environment = svc.Environment
	cfg.OTLPEndpoint = svc.OTLPEndpoint
	cfg.HealthPort = healthPort
	cfg.LogLevel = observability.ParseLevel(svc.LogLevel)

	obs, err := observability.NewObservability(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	return obs, nil
}

// Flush shuts obs down within ShutdownTimeout, logging any failure.
func Flush(obs *observability.Observability) {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := obs.Shutdown(ctx); err != nil {
		obs.Logger.ErrorContext(ctx, "Error during observability shutdown", "error", err)
	}
}

// Printer writes status lines. Color is dropped automatically when the
// output is not a terminal.
type Printer struct {
	w io.Writer
}

func NewPrinter(w io.Writer) *Printer { return &Printer{w: w} }

func (p *Printer) Info(format string, args ...any) {
	fmt.Fprintln(p.w, color.CyanString(format, args...))
}

func (p *Printer) Success(format string, args ...any) {
	fmt.Fprintln(p.w, color.GreenString("✓ ")+fmt.Sprintf(format, args...))
}

func (p *Printer) Warn(format string, args ...any) {
	fmt.Fprintln(p.w, color.YellowString("! ")+fmt.Sprintf(format, args...))
}

func (p *Printer) Fail(format string, args ...any) {
	fmt.Fprintln(p.w, color.RedString("✗ ")+fmt.Sprintf(format, args...))
}

// Heading prints a bold title followed by a rule of the same width.
func (p *Printer) Heading(title string) {
	fmt.Fprintln(p.w, color.New(color.Bold).Sprint(title))
	fmt.Fprintln(p.w, color.HiBlackString("%s", rule(len([]rune(title)))))
}

// Prompt writes s without a trailing newline.
func (p *Printer) Prompt(s string) {
	fmt.Fprint(p.w, color.New(color.Bold).Sprint(s))
}

// Plain writes text as is.
func (p *Printer) Plain(text string) {
	fmt.Fprintln(p.w, text)
}

func rule(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = '─'
	}
	return string(b)
}
