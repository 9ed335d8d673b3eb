// internal/model/delay.go
package model

import (
	"encoding/json"

	appErrors "github.com/mcardwell78/RBAconnector-sub000/internal/errors"
)

type DelayUnit string

const (
	DelayUnitMinutes DelayUnit = "minutes"
	DelayUnitDays    DelayUnit = "days"
	DelayUnitWeeks   DelayUnit = "weeks"
	DelayUnitMonths  DelayUnit = "months"
)

// wire value for absolute (pinned) delays
const unitCustom = "custom"

// RelativeDelay offsets a step from the previous step's send time.
type RelativeDelay struct {
	Value int       `json:"value"`
	Unit  DelayUnit `json:"unit"`
}

// AbsoluteDelay pins a step to a wall-clock time in a fixed zone.
// TZOffsetMinutes is minutes east of UTC.
type AbsoluteDelay struct {
	Date            string `json:"date"` // 2006-01-02
	Time            string `json:"time"` // 15:04
	TZOffsetMinutes int    `json:"tz_offset_minutes"`
}

// DelaySpec is a tagged union: exactly one of Relative or Absolute is set.
// The persisted wire shape stays the loose {value, unit, time?, date?} object,
// with unit "custom" meaning absolute; the union keeps invalid combinations
// unrepresentable in code.
type DelaySpec struct {
	Relative *RelativeDelay
	Absolute *AbsoluteDelay
}

func NewRelative(value int, unit DelayUnit) DelaySpec {
	return DelaySpec{Relative: &RelativeDelay{Value: value, Unit: unit}}
}

func NewAbsolute(date, tm string, tzOffsetMinutes int) DelaySpec {
	return DelaySpec{Absolute: &AbsoluteDelay{Date: date, Time: tm, TZOffsetMinutes: tzOffsetMinutes}}
}

// IsZero reports an unset spec (no override for this step).
func (d DelaySpec) IsZero() bool {
	return d.Relative == nil && d.Absolute == nil
}

// delayWire is the persisted shape shared by both variants.
type delayWire struct {
	Value           int    `json:"value,omitempty"`
	Unit            string `json:"unit"`
	Date            string `json:"date,omitempty"`
	Time            string `json:"time,omitempty"`
	TZOffsetMinutes int    `json:"tz_offset_minutes,omitempty"`
}

func (d DelaySpec) MarshalJSON() ([]byte, error) {
	if d.Absolute != nil {
		return json.Marshal(delayWire{
			Unit:            unitCustom,
			Date:            d.Absolute.Date,
			Time:            d.Absolute.Time,
			TZOffsetMinutes: d.Absolute.TZOffsetMinutes,
		})
	}
	if d.Relative != nil {
		return json.Marshal(delayWire{Value: d.Relative.Value, Unit: string(d.Relative.Unit)})
	}
	return []byte("null"), nil
}

func (d *DelaySpec) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*d = DelaySpec{}
		return nil
	}
	var w delayWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Unit {
	case unitCustom:
		if w.Date == "" || w.Time == "" {
			return appErrors.NewInvalidDelay("custom delay requires date and time")
		}
		*d = NewAbsolute(w.Date, w.Time, w.TZOffsetMinutes)
		return nil
	case string(DelayUnitMinutes), string(DelayUnitDays), string(DelayUnitWeeks), string(DelayUnitMonths):
		if w.Value <= 0 {
			return appErrors.NewInvalidDelay("relative delay requires a positive value")
		}
		*d = NewRelative(w.Value, DelayUnit(w.Unit))
		return nil
	default:
		return appErrors.NewInvalidDelay("unknown unit " + w.Unit)
	}
}
