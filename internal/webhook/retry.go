package webhook

import (
	"math/rand"
	"time"
)

// DefaultRetryDelays are the waits between attempts. A delivery is tried
// once plus one retry per entry.
var DefaultRetryDelays = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
}

// JitterFactor is the ±percentage of jitter applied to delays.
const JitterFactor = 0.2

// nextRetryDelay returns delays[attempt] with jitter. attempt is 0-indexed;
// ok is false once the delays are exhausted.
func nextRetryDelay(delays []time.Duration, attempt int) (time.Duration, bool) {
	if attempt < 0 || attempt >= len(delays) {
		return 0, false
	}

	base := delays[attempt]
	jitterRange := float64(base) * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange

	return time.Duration(float64(base) + jitter), true
}
