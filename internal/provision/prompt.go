package provision

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirm asks a yes/no question on w and reads the answer from r. Only
// "y" and "yes" confirm; end of input declines.
func Confirm(w io.Writer, r io.Reader, question string) (bool, error) {
	_, _ = fmt.Fprintf(w, "%s [y/N]: ", question)

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// ProgressBar renders a single-line progress bar.
type ProgressBar struct {
	w     io.Writer
	width int
	last  string
}

// NewProgressBar creates a bar width cells wide (default: 30).
func NewProgressBar(w io.Writer, width int) *ProgressBar {
	if width <= 0 {
		width = 30
	}
	return &ProgressBar{w: w, width: width}
}

// Update redraws the bar. Identical frames are skipped.
func (p *ProgressBar) Update(percent float64, message string) {
	percent = max(0, min(100, percent))
	filled := int(percent / 100 * float64(p.width))
	frame := fmt.Sprintf("\r[%s%s] %3.0f%% %s",
		strings.Repeat("=", filled), strings.Repeat(" ", p.width-filled), percent, message)
	if frame == p.last {
		return
	}
	p.last = frame
	_, _ = io.WriteString(p.w, frame)
}

// Finish ends the bar line.
func (p *ProgressBar) Finish() {
	if p.last != "" {
		_, _ = io.WriteString(p.w, "\n")
	}
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// PullPrinter returns a PullModel callback that draws on bar.
func PullPrinter(bar *ProgressBar) func(PullProgress) {
	return func(p PullProgress) {
		if p.Total <= 0 {
			return
		}
		bar.Update(p.Percent, fmt.Sprintf("%s (%s/%s)", p.Status, FormatBytes(p.Completed), FormatBytes(p.Total)))
	}
}
