package cli

import (
	"fmt"
	"io"

	"github.com/Veraticus/transitfix/internal/model"
	"github.com/schollz/progressbar/v3"
)

// CorrectionProgress draws a progress bar advanced once per correction result.
type CorrectionProgress struct {
	bar    *progressbar.ProgressBar
	writer io.Writer
}

// NewCorrectionProgress creates a bar sized for total items.
func NewCorrectionProgress(writer io.Writer, total int) *CorrectionProgress {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Correcting check-ins...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(writer)
		}),
	)
	return &CorrectionProgress{bar: bar, writer: writer}
}

// Observe advances the bar for one result. It is safe for concurrent use.
func (p *CorrectionProgress) Observe(res model.CorrectionResult) {
	if res.Status == model.CorrectionFailed {
		p.bar.Describe(fmt.Sprintf("[red]Failed %s[reset]", res.Barcode))
	}
	_ = p.bar.Add(1)
}

// Finish completes the bar even when items were skipped.
func (p *CorrectionProgress) Finish() {
	_ = p.bar.Finish()
}
