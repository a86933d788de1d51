package packet

import "time"

// The wire format carries timestamps as 100-nanosecond ticks since
// 0001-01-01 00:00:00 UTC, the tick epoch the viewer's file format uses.
const (
	ticksPerSecond = 10_000_000

	// Ticks between 0001-01-01 and the Unix epoch.
	unixEpochTicks = 621_355_968_000_000_000
)

// TicksFromTime converts t to wire ticks. The zero time maps to zero ticks.
func TicksFromTime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	u := t.UTC()
	return uint64(u.Unix())*ticksPerSecond + uint64(u.Nanosecond()/100) + unixEpochTicks
}

// TimeFromTicks converts wire ticks back to a UTC time. Zero ticks map to
// the zero time.
func TimeFromTicks(ticks uint64) time.Time {
	if ticks == 0 {
		return time.Time{}
	}
	rel := int64(ticks - unixEpochTicks)
	return time.Unix(rel/ticksPerSecond, (rel%ticksPerSecond)*100).UTC()
}
