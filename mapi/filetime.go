package mapi

import (
	"math"
	"time"
)

// Seconds between 1601-01-01 and 1970-01-01.
const filetimeEpochDelta = 11644473600

// FiletimeToTime converts a FILETIME (100ns ticks since 1601-01-01 UTC).
// Zero maps to the zero time.Time.
func FiletimeToTime(ft uint64) time.Time {
	if ft == 0 {
		return time.Time{}
	}
	secs := int64(ft/10_000_000) - filetimeEpochDelta
	nsec := int64(ft%10_000_000) * 100
	return time.Unix(secs, nsec).UTC()
}

// TimeToFiletime is the inverse of FiletimeToTime.
func TimeToFiletime(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	secs := uint64(t.Unix() + filetimeEpochDelta)
	return secs*10_000_000 + uint64(t.Nanosecond()/100)
}

var oleEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// AppTimeToTime converts a PT_APPTIME (OLE Automation date: days since
// 1899-12-30, fraction is time of day).
func AppTimeToTime(days float64) time.Time {
	whole, frac := math.Modf(days)
	t := oleEpoch.AddDate(0, 0, int(whole))
	return t.Add(time.Duration(math.Abs(frac) * float64(24*time.Hour)))
}
