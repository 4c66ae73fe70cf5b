package detect

import "log"

// OutputSink receives warn-worthy evaluations. Implementations render or
// forward them; the pipeline imposes no format.
type OutputSink interface {
	Publish(event MessageEvent, result DetectionResult)
}

// LogSink is the default sink writing a one-line summary per warning.
type LogSink struct{}

var _ OutputSink = (*LogSink)(nil)

// Publish logs the warning with its level, score and triggered rules.
func (LogSink) Publish(event MessageEvent, result DetectionResult) {
	log.Printf("warning sender=%s level=%s score=%.0f rules=%v",
		event.SenderKey(), result.Level, result.TotalScore, result.TriggeredRules())
}
