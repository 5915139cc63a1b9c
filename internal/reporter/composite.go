package reporter

// CompositeReporter forwards every sampling event to a list of reporters,
// in the order they were given.
type CompositeReporter struct {
	sinks []Reporter
}

// NewCompositeReporter builds a fan-out reporter. Nil entries are dropped.
func NewCompositeReporter(sinks ...Reporter) *CompositeReporter {
	c := &CompositeReporter{sinks: make([]Reporter, 0, len(sinks))}
	for _, s := range sinks {
		if s != nil {
			c.sinks = append(c.sinks, s)
		}
	}
	return c
}

// Len reports how many sinks receive events.
func (c *CompositeReporter) Len() int { return len(c.sinks) }

func (c *CompositeReporter) each(emit func(Reporter)) {
	for _, s := range c.sinks {
		emit(s)
	}
}

func (c *CompositeReporter) Hardware(s HardwareSummary) {
	c.each(func(r Reporter) { r.Hardware(s) })
}

func (c *CompositeReporter) Initialization(s InitializationSummary) {
	c.each(func(r Reporter) { r.Initialization(s) })
}

func (c *CompositeReporter) SamplingStarted(p SamplingPlan) {
	c.each(func(r Reporter) { r.SamplingStarted(p) })
}

func (c *CompositeReporter) FrameProgress(p FrameProgress) {
	c.each(func(r Reporter) { r.FrameProgress(p) })
}

func (c *CompositeReporter) Checkpoint(s CheckpointSnapshot) {
	c.each(func(r Reporter) { r.Checkpoint(s) })
}

func (c *CompositeReporter) RunComplete(o RunOutcome) {
	c.each(func(r Reporter) { r.RunComplete(o) })
}

func (c *CompositeReporter) Warning(msg string) {
	c.each(func(r Reporter) { r.Warning(msg) })
}

func (c *CompositeReporter) Error(e ReporterError) {
	c.each(func(r Reporter) { r.Error(e) })
}

func (c *CompositeReporter) OperationComplete(msg string) {
	c.each(func(r Reporter) { r.OperationComplete(msg) })
}

func (c *CompositeReporter) BatchStarted(b BatchStartInfo) {
	c.each(func(r Reporter) { r.BatchStarted(b) })
}

func (c *CompositeReporter) FileProgress(f FileProgressContext) {
	c.each(func(r Reporter) { r.FileProgress(f) })
}

func (c *CompositeReporter) BatchComplete(s BatchSummary) {
	c.each(func(r Reporter) { r.BatchComplete(s) })
}

func (c *CompositeReporter) Verbose(msg string) {
	c.each(func(r Reporter) { r.Verbose(msg) })
}
