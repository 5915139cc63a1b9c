package reporter

// Reporter receives user-facing events from a sampling run. A run never
// calls its methods concurrently.
type Reporter interface {
	// Per-video events, in the order a run emits them.
	Hardware(summary HardwareSummary)
	Initialization(summary InitializationSummary)
	SamplingStarted(plan SamplingPlan)
	FrameProgress(progress FrameProgress)
	Checkpoint(snapshot CheckpointSnapshot)
	RunComplete(outcome RunOutcome)

	// Batch events wrap the per-video ones when a directory is sampled.
	BatchStarted(info BatchStartInfo)
	FileProgress(context FileProgressContext)
	BatchComplete(summary BatchSummary)

	Warning(message string)
	Error(err ReporterError)
	OperationComplete(message string)
	Verbose(message string)
}

// NullReporter drops every event.
type NullReporter struct{}

var _ Reporter = NullReporter{}

func (NullReporter) Hardware(HardwareSummary)             {}
func (NullReporter) Initialization(InitializationSummary) {}
func (NullReporter) SamplingStarted(SamplingPlan)         {}
func (NullReporter) FrameProgress(FrameProgress)          {}
func (NullReporter) Checkpoint(CheckpointSnapshot)        {}
func (NullReporter) RunComplete(RunOutcome)               {}
func (NullReporter) BatchStarted(BatchStartInfo)          {}
func (NullReporter) FileProgress(FileProgressContext)     {}
func (NullReporter) BatchComplete(BatchSummary)           {}
func (NullReporter) Warning(string)                       {}
func (NullReporter) Error(ReporterError)                  {}
func (NullReporter) OperationComplete(string)             {}
func (NullReporter) Verbose(string)                       {}
