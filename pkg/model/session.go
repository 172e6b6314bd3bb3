package model

import (
	"slices"

	"github.com/samber/lo"
)

// LapData holds the summary values reported by the logger when a lap
// is completed.
type LapData struct {
	LapNumber  int     `json:"lapNumber"`
	StartTime  int64   `json:"startTime"`
	FinishTime int64   `json:"finishTime"`
	Volts      float64 `json:"volts"`
	Amps       float64 `json:"amps"`
	RPM        float64 `json:"rpm"`
	Speed      float64 `json:"speed"`
	AmpHours   float64 `json:"ampHours"`
	LapTime    float64 `json:"lapTime"`
	Efficiency float64 `json:"efficiency"`
}

// RaceSession collects the laps of a single race. The start time is
// inferred from the first lap report and doubles as the session key.
type RaceSession struct {
	StartTime int64            `json:"startTime"`
	TrackName string           `json:"trackName"`
	Laps      map[int]*LapData `json:"laps"`
}

func (r *RaceSession) Clone() *RaceSession {
	ret := &RaceSession{
		StartTime: r.StartTime,
		TrackName: r.TrackName,
		Laps:      make(map[int]*LapData, len(r.Laps)),
	}
	for k, v := range r.Laps {
		lap := *v
		ret.Laps[k] = &lap
	}
	return ret
}

// LastRecordedLap returns the highest lap number stored so far, 0 if the
// session has no laps yet.
func (r *RaceSession) LastRecordedLap() int {
	if len(r.Laps) == 0 {
		return 0
	}
	return slices.Max(lo.Keys(r.Laps))
}

// OrderedLaps returns the laps sorted by lap number.
func (r *RaceSession) OrderedLaps() []*LapData {
	nums := lo.Keys(r.Laps)
	slices.Sort(nums)
	return lo.Map(nums, func(n int, _ int) *LapData { return r.Laps[n] })
}

// SessionMap holds all detected races keyed by their start time.
type SessionMap map[int64]*RaceSession

func (s SessionMap) Clone() SessionMap {
	ret := make(SessionMap, len(s))
	for k, v := range s {
		ret[k] = v
	}
	return ret
}

// OrderedStarts returns the session keys in chronological order.
func (s SessionMap) OrderedStarts() []int64 {
	keys := lo.Keys(s)
	slices.Sort(keys)
	return keys
}

// Current returns the most recent session or nil if none exists.
func (s SessionMap) Current() *RaceSession {
	if len(s) == 0 {
		return nil
	}
	return s[slices.Max(lo.Keys(s))]
}
