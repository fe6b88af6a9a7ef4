package pipeline

import (
	"time"

	"github.com/relabs-tech/attitude_monitor/internal/orientation"
	"github.com/relabs-tech/attitude_monitor/internal/telemetry"
)

// Snapshot is everything a rendering or UI consumer needs for one tick.
type Snapshot struct {
	Time time.Time `json:"time"`

	orientation.Pose
	telemetry.Accel

	Exceeded   bool      `json:"exceeded"`
	Fresh      bool      `json:"fresh"`
	Source     string    `json:"source"` // "live" or "demo"
	Status     string    `json:"status"`
	LastSample time.Time `json:"last_sample,omitzero"`
}

// Snapshot builds the consumer-facing view at now. The envelope flag is
// derived from the smoothed attitude, never from the demo motion.
func (p *Pipeline) Snapshot(now time.Time, status string) Snapshot {
	sel := p.Select(now)
	return Snapshot{
		Time:       now,
		Pose:       sel.Pose,
		Accel:      p.accel,
		Exceeded:   orientation.IsExceeded(p.filter.State()),
		Fresh:      sel.Kind == Real,
		Source:     sel.Kind.String(),
		Status:     status,
		LastSample: p.lastSample,
	}
}
