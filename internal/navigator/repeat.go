package navigator

import "time"

// repeater tracks a held direction. The first step happens on press; after
// delay the step repeats every interval until release.
type repeater struct {
	delay    time.Duration
	interval time.Duration

	held      bool
	dir       Event
	pressedAt time.Time
	lastStep  time.Time
	repeating bool
}

func (r *repeater) arm(dir Event, now time.Time) {
	r.held = true
	r.dir = dir
	r.pressedAt = now
	r.lastStep = now
	r.repeating = false
}

func (r *repeater) release() {
	r.held = false
	r.repeating = false
}

// due returns how many repeat steps are owed at now.
func (r *repeater) due(now time.Time) int {
	if !r.held {
		return 0
	}
	if !r.repeating {
		if now.Sub(r.pressedAt) < r.delay {
			return 0
		}
		r.repeating = true
		r.lastStep = now
		return 1
	}
	if now.Sub(r.lastStep) < r.interval {
		return 0
	}
	r.lastStep = now
	return 1
}
