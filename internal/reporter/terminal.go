package reporter

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/five82/vidsample/internal/util"
)

// TerminalReporter outputs human-friendly text to the terminal.
type TerminalReporter struct {
	mu         sync.Mutex
	out        io.Writer
	errOut     io.Writer
	progress   *progressbar.ProgressBar
	maxPercent float64
	verbose    bool
	cyan       *color.Color
	green      *color.Color
	yellow     *color.Color
	red        *color.Color
	magenta    *color.Color
	bold       *color.Color
	faint      *color.Color
}

// NewTerminalReporter creates a new terminal reporter writing to stdout and stderr.
func NewTerminalReporter(verbose bool) *TerminalReporter {
	return NewTerminalReporterWithWriters(os.Stdout, os.Stderr, verbose)
}

// NewTerminalReporterWithWriters creates a terminal reporter with custom writers.
func NewTerminalReporterWithWriters(out, errOut io.Writer, verbose bool) *TerminalReporter {
	return &TerminalReporter{
		out:     out,
		errOut:  errOut,
		verbose: verbose,
		cyan:    color.New(color.FgCyan, color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow, color.Bold),
		red:     color.New(color.FgRed, color.Bold),
		magenta: color.New(color.FgMagenta),
		bold:    color.New(color.Bold),
		faint:   color.New(color.Faint),
	}
}

func (r *TerminalReporter) finishProgress() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.progress != nil {
		_ = r.progress.Finish()
		r.progress = nil
	}
	r.maxPercent = 0
}

func (r *TerminalReporter) section(title string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = r.cyan.Fprintln(r.out, title)
}

// printLabel prints a bold label with fixed width padding followed by a value.
// Width is applied to the plain text before styling to ensure proper alignment.
func (r *TerminalReporter) printLabel(width int, label, value string) {
	paddedLabel := fmt.Sprintf("%-*s", width, label)
	_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.bold.Sprint(paddedLabel), value)
}

func (r *TerminalReporter) Hardware(summary HardwareSummary) {
	r.section("HARDWARE")
	r.printLabel(10, "Hostname:", summary.Hostname)
	r.printLabel(10, "CPUs:", fmt.Sprintf("%d (%s)", summary.CPUs, summary.OS))
	if summary.Memory != "" {
		r.printLabel(10, "Memory:", summary.Memory)
	}
}

func (r *TerminalReporter) Initialization(summary InitializationSummary) {
	r.section("VIDEO")
	r.printLabel(11, "File:", summary.InputFile)
	r.printLabel(11, "Duration:", summary.Duration)
	if summary.Resolution != "" {
		r.printLabel(11, "Resolution:", summary.Resolution)
	}
	if summary.Codec != "" {
		r.printLabel(11, "Codec:", summary.Codec)
	}
	r.printLabel(11, "Frames:", fmt.Sprintf("%d at %.3f fps", summary.TotalFrames, summary.NativeFPS))
	if summary.StorePath != "" {
		r.printLabel(11, "Store:", summary.StorePath)
	}
	if summary.RunID != "" {
		r.printLabel(11, "Run:", r.faint.Sprint(summary.RunID))
	}
}

func (r *TerminalReporter) SamplingStarted(plan SamplingPlan) {
	r.finishProgress()

	r.section("SAMPLING")
	const w = 10
	r.printLabel(w, "Stride:", fmt.Sprintf("every %d frame(s) -> %.3f fps (target %.2f)",
		plan.Stride, plan.EffectiveFPS, plan.TargetFPS))
	start := fmt.Sprintf("frame %d", plan.StartFrame)
	if plan.Resumed {
		start += " " + r.magenta.Sprint("(resumed)")
	}
	r.printLabel(w, "Start:", start)
	r.printLabel(w, "Samples:", fmt.Sprintf("%d expected", plan.ExpectedSamples))

	r.mu.Lock()
	defer r.mu.Unlock()

	r.progress = progressbar.NewOptions64(
		100,
		progressbar.OptionSetDescription(""),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(r.errOut),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionShowDescriptionAtLineEnd(),
		progressbar.OptionSetElapsedTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "Sampling [",
			BarEnd:        "]",
		}),
	)
}

func (r *TerminalReporter) FrameProgress(progress FrameProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.progress == nil {
		return
	}

	clamped := min(max(progress.Percent, 0), 100)
	if clamped >= r.maxPercent {
		r.maxPercent = clamped
		_ = r.progress.Set64(int64(clamped))
	}
	r.progress.Describe(fmt.Sprintf("frame %d (%.2f%%)", progress.FrameIndex, progress.Percent))
}

func (r *TerminalReporter) Checkpoint(snapshot CheckpointSnapshot) {
	r.mu.Lock()
	bar := r.progress
	r.mu.Unlock()
	if bar != nil {
		_ = bar.Clear()
	}

	label := "saved intermediate results"
	switch {
	case snapshot.Cancelled:
		label = "saved results before stopping"
	case !snapshot.Partial:
		label = "saved final results"
	}
	_, _ = fmt.Fprintf(r.out, "  %s %s: %d frames in %s (%s, window %s), %s remaining\n",
		r.magenta.Sprint("›"),
		label,
		snapshot.Appended,
		util.FormatDuration(snapshot.Elapsed.Seconds()),
		util.FormatFPS(snapshot.FPS),
		util.FormatFPS(snapshot.WindowFPS),
		util.FormatETA(snapshot.ETA.Seconds()))
}

func (r *TerminalReporter) RunComplete(outcome RunOutcome) {
	r.finishProgress()

	r.section("RESULTS")
	r.printLabel(9, "File:", r.bold.Sprint(outcome.InputFile))
	r.printLabel(9, "Sampled:", fmt.Sprintf("%d frames, %d partial flush(es)", outcome.Sampled, outcome.Flushes))
	r.printLabel(9, "Time:", fmt.Sprintf("%s (%s)",
		util.FormatDuration(outcome.Elapsed.Seconds()), util.FormatFPS(outcome.FPS)))
	if outcome.StopReason != "" {
		r.printLabel(9, "Stopped:", r.yellow.Sprint(outcome.StopReason))
	}
}

func (r *TerminalReporter) Warning(message string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = r.yellow.Fprintf(r.out, "WARN: %s\n", message)
}

func (r *TerminalReporter) Error(err ReporterError) {
	r.finishProgress()

	_, _ = fmt.Fprintln(r.errOut)
	_, _ = r.red.Fprintf(r.errOut, "ERROR %s\n", err.Title)
	_, _ = fmt.Fprintf(r.errOut, "  %s\n", err.Message)
	if err.Context != "" {
		_, _ = fmt.Fprintf(r.errOut, "  Context: %s\n", err.Context)
	}
	if err.Suggestion != "" {
		_, _ = fmt.Fprintf(r.errOut, "  Suggestion: %s\n", err.Suggestion)
	}
}

func (r *TerminalReporter) OperationComplete(message string) {
	_, _ = fmt.Fprintln(r.out)
	_, _ = fmt.Fprintf(r.out, "%s %s\n", r.green.Add(color.Bold).Sprint("✓"), r.bold.Sprint(message))
}

func (r *TerminalReporter) BatchStarted(info BatchStartInfo) {
	r.section("BATCH")
	_, _ = fmt.Fprintf(r.out, "  Sampling %d files -> %s\n", info.TotalFiles, r.bold.Sprint(info.StorePath))
	for i, name := range info.FileList {
		_, _ = fmt.Fprintf(r.out, "  %d. %s\n", i+1, name)
	}
}

func (r *TerminalReporter) FileProgress(context FileProgressContext) {
	_, _ = fmt.Fprintf(r.out, "\nFile %s of %d\n", r.bold.Sprint(context.CurrentFile), context.TotalFiles)
}

func (r *TerminalReporter) BatchComplete(summary BatchSummary) {
	r.section("BATCH SUMMARY")
	_, _ = fmt.Fprintf(r.out, "  %s\n", r.bold.Sprintf("%d of %d succeeded", summary.SuccessfulCount, summary.TotalFiles))
	_, _ = fmt.Fprintf(r.out, "  Sampled: %d frames\n", summary.TotalSampled)
	_, _ = fmt.Fprintf(r.out, "  Time: %s\n", util.FormatDurationFromSecs(int64(summary.TotalDuration.Seconds())))

	for _, result := range summary.FileResults {
		if result.Err != "" {
			_, _ = fmt.Fprintf(r.out, "  - %s %s\n", result.Filename, r.red.Sprint(result.Err))
			continue
		}
		_, _ = fmt.Fprintf(r.out, "  - %s (%d frames)\n", result.Filename, result.Sampled)
	}
}

func (r *TerminalReporter) Verbose(message string) {
	if !r.verbose {
		return
	}
	_, _ = fmt.Fprintf(r.out, "  %s\n", r.faint.Sprint(message))
}
