package escalation

import "fmt"

// Wait bands used when there is nothing to interpolate from.
const (
	WaitNoAgents = "15-30 minutes"
	WaitNoQueue  = "2-5 minutes"
)

// minutesPerQueuedItem scales the per-agent backlog into minutes.
const minutesPerQueuedItem = 10

// EstimateWait returns a customer-facing wait range. It is a linear rule of
// thumb over the backlog per free agent, not a queueing model; bounds are
// truncated to whole minutes.
func EstimateWait(available, pending int) string {
	switch {
	case available <= 0:
		return WaitNoAgents
	case pending <= 0:
		return WaitNoQueue
	}
	base := float64(pending) / float64(available) * minutesPerQueuedItem
	return fmt.Sprintf("%d-%d minutes", int(base), int(base*1.5))
}
