package orientation

import "math"

// AttitudeLimitDeg is the roll/pitch envelope, in degrees.
const AttitudeLimitDeg = 75.0

// IsExceeded reports whether the attitude is outside the roll/pitch envelope.
// Yaw drifts without bound on this sensor and is not part of the check.
func IsExceeded(p Pose) bool {
	return math.Abs(p.Roll) > AttitudeLimitDeg || math.Abs(p.Pitch) > AttitudeLimitDeg
}
