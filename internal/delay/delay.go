// internal/delay/delay.go
//
// Pure delay math: turns an anchor time plus per-step delay specs into
// absolute UTC send timestamps. No I/O happens here; every store-touching
// caller goes through this one implementation instead of redoing unit
// conversion inline.
package delay

import (
	"time"

	appErrors "github.com/mcardwell78/RBAconnector-sub000/internal/errors"
	"github.com/mcardwell78/RBAconnector-sub000/internal/model"
)

// MinLeadTime is the minimum distance between "now" and the anchor. Anchors
// closer than this are rejected outright, never clamped.
const MinLeadTime = time.Minute

const anchorLayout = "2006-01-02 15:04"

// Anchor is the wall-clock start of a schedule: date, time and a fixed zone
// given as minutes east of UTC.
type Anchor struct {
	Date            string
	Time            string
	TZOffsetMinutes int
}

// UTC converts the anchor to a canonical UTC instant.
func (a Anchor) UTC() (time.Time, error) {
	loc := time.FixedZone("anchor", a.TZOffsetMinutes*60)
	t, err := time.ParseInLocation(anchorLayout, a.Date+" "+a.Time, loc)
	if err != nil {
		return time.Time{}, appErrors.NewInvalidDelay("bad anchor date/time: " + err.Error())
	}
	return t.UTC(), nil
}

// AnchorAt formats an instant back into an Anchor (UTC zone), rounding up to
// the next whole minute so the formatted anchor never lands before the
// instant it was derived from. Used when the anchor is computed rather than
// user supplied, e.g. promoting a queued enrollment.
func AnchorAt(t time.Time) Anchor {
	u := t.UTC()
	if trunc := u.Truncate(time.Minute); trunc.Before(u) {
		u = trunc.Add(time.Minute)
	}
	return Anchor{Date: u.Format("2006-01-02"), Time: u.Format("15:04")}
}

// Duration maps a relative delay onto a fixed duration. Weeks are 7 days and
// months are 30 days by definition here; the approximation is intentional and
// compounds across chained month steps. Not calendar-aware.
func Duration(r model.RelativeDelay) (time.Duration, error) {
	if r.Value <= 0 {
		return 0, appErrors.NewInvalidDelay("relative delay requires a positive value")
	}
	switch r.Unit {
	case model.DelayUnitMinutes:
		return time.Duration(r.Value) * time.Minute, nil
	case model.DelayUnitDays:
		return time.Duration(r.Value) * 24 * time.Hour, nil
	case model.DelayUnitWeeks:
		return time.Duration(r.Value) * 7 * 24 * time.Hour, nil
	case model.DelayUnitMonths:
		return time.Duration(r.Value) * 30 * 24 * time.Hour, nil
	default:
		return 0, appErrors.NewInvalidDelay("unknown unit " + string(r.Unit))
	}
}

// Chain resolves one step's send time from the previous step's. Absolute
// specs ignore prev entirely.
func Chain(prev time.Time, spec model.DelaySpec) (time.Time, error) {
	if spec.Absolute != nil {
		a := Anchor{Date: spec.Absolute.Date, Time: spec.Absolute.Time, TZOffsetMinutes: spec.Absolute.TZOffsetMinutes}
		return a.UTC()
	}
	if spec.Relative != nil {
		d, err := Duration(*spec.Relative)
		if err != nil {
			return time.Time{}, err
		}
		return prev.Add(d), nil
	}
	return time.Time{}, appErrors.NewInvalidDelay("empty delay spec")
}

// Resolve turns an anchor plus per-step specs into one UTC timestamp per
// step. Step 0 is the anchor itself; step i>0 uses the override for i when
// present, else the campaign's own delay. The anchor must be at least
// MinLeadTime after now.
func Resolve(anchor Anchor, steps []model.Step, overrides []model.DelaySpec, now time.Time) ([]time.Time, error) {
	at, err := anchor.UTC()
	if err != nil {
		return nil, err
	}
	if at.Before(now.Add(MinLeadTime)) {
		return nil, appErrors.NewPastAnchor(at, now)
	}

	out := make([]time.Time, len(steps))
	if len(steps) == 0 {
		return out, nil
	}
	out[0] = at
	for i := 1; i < len(steps); i++ {
		spec := steps[i].Delay
		if i < len(overrides) && !overrides[i].IsZero() {
			spec = overrides[i]
		}
		t, err := Chain(out[i-1], spec)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}
