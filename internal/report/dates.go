package report

import (
	"time"

	"github.com/modelpulse/tracker-cli/internal/model"
)

// LastFriday returns the most recent Friday strictly before the given time's
// calendar day. Weekly reports default their comparison baseline to it.
func LastFriday(ref time.Time) model.Day {
	d := ref
	for {
		d = d.AddDate(0, 0, -1)
		if d.Weekday() == time.Friday {
			return model.DayOf(d)
		}
	}
}
