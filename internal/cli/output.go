package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/muesli/termenv"

	"github.com/shinji-kodama/stackctl/internal/model"
)

// Status glyphs prefixed to every human-readable line.
const (
	glyphSuccess = "✓"
	glyphWarning = "⚠"
	glyphInfo    = "ℹ"
	glyphError   = "✗"
)

// printer writes prefixed status lines. Glyphs are colored only when the
// writer is a terminal that supports it.
type printer struct {
	w   io.Writer
	out *termenv.Output
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, out: termenv.NewOutput(w)}
}

func (p *printer) line(glyph, color, format string, args ...interface{}) {
	prefix := p.out.String(glyph).Foreground(p.out.Color(color)).Bold().String()
	fmt.Fprintf(p.w, "%s %s\n", prefix, fmt.Sprintf(format, args...))
}

// Success prints a green check line.
func (p *printer) Success(format string, args ...interface{}) {
	p.line(glyphSuccess, "2", format, args...)
}

// Warn prints a yellow warning line.
func (p *printer) Warn(format string, args ...interface{}) {
	p.line(glyphWarning, "3", format, args...)
}

// Info prints a blue info line.
func (p *printer) Info(format string, args ...interface{}) {
	p.line(glyphInfo, "4", format, args...)
}

// Error prints a red cross line.
func (p *printer) Error(format string, args ...interface{}) {
	p.line(glyphError, "1", format, args...)
}

// Plain prints an unprefixed, indented line.
func (p *printer) Plain(format string, args ...interface{}) {
	fmt.Fprintf(p.w, "  %s\n", fmt.Sprintf(format, args...))
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// formatSize renders a byte count with binary units ("25MiB").
func formatSize(n int64) string {
	return units.BytesSize(float64(n))
}

// formatDuration rounds d for display.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

// formatServices renders a service list, or "all services" when empty.
func formatServices(services []model.ServiceName) string {
	if len(services) == 0 {
		return "all services"
	}
	return strings.Join(services, ", ")
}

// printTail shows the last lines of a failed command's output.
func printTail(p *printer, res model.CommandResult, n int) {
	for _, l := range res.Tail(n) {
		p.Plain("%s", l)
	}
}
