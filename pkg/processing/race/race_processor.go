package race

import (
	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
)

// fields the logger reports once per completed lap
var lapSummaryKeys = []string{
	model.KeyLapVolts,
	model.KeyLapAmps,
	model.KeyLapRPM,
	model.KeyLapSpeed,
	model.KeyLapAmpHours,
	model.KeyLapTime,
	model.KeyLapEff,
}

type SessionProcessor struct {
	// Sessions holds all detected races keyed by inferred start time.
	Sessions model.SessionMap
	log      *log.Logger
}

type SessionProcessorOption func(sp *SessionProcessor)

func WithLogger(logger *log.Logger) SessionProcessorOption {
	return func(sp *SessionProcessor) {
		sp.log = logger
	}
}

func NewSessionProcessor(opts ...SessionProcessorOption) *SessionProcessor {
	ret := &SessionProcessor{
		Sessions: make(model.SessionMap),
		log:      log.Default().Named("processing.race"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// ProcessPacket folds a single scaled packet into the session map.
func (p *SessionProcessor) ProcessPacket(pkt model.Packet, trackName string) {
	before := len(p.Sessions)
	p.Sessions = Reduce(p.Sessions, pkt, trackName)
	if len(p.Sessions) > before {
		p.log.Debug("new race detected",
			log.Int("lap", getLapNumber(pkt)),
			log.Int64("start", p.Sessions.Current().StartTime))
	}
}

// Reset discards all collected sessions.
func (p *SessionProcessor) Reset() {
	p.Sessions = make(model.SessionMap)
}

// Replay rebuilds a session map from scratch by folding packets through
// Reduce in order. Callers pass packets sorted by timestamp, the lap
// heuristics depend on it. tracks carries the track name reported with
// each packet, a shorter slice leaves the remainder blank.
func Replay(packets []model.Packet, tracks []string) model.SessionMap {
	sessions := make(model.SessionMap)
	for i, pkt := range packets {
		trackName := ""
		if i < len(tracks) {
			trackName = tracks[i]
		}
		sessions = Reduce(sessions, pkt, trackName)
	}
	return sessions
}

// Reduce returns a new session map with the lap summary of pkt applied.
// Packets without any lap summary value and packets reporting lap 0 leave
// the map unchanged: lap 0 means "lap not yet started". The input map and
// its sessions are never modified.
func Reduce(sessions model.SessionMap, pkt model.Packet, trackName string) model.SessionMap {
	if !hasLapSummary(pkt) {
		return sessions
	}
	lapNumber := getLapNumber(pkt)
	if lapNumber == 0 {
		return sessions
	}

	ret := sessions.Clone()
	current := ret.Current()
	lastRecorded := 0
	if current != nil {
		lastRecorded = current.LastRecordedLap()
	}

	lap := newLapData(pkt, lapNumber)
	if current == nil || isNewRace(lapNumber, lastRecorded) {
		// back-calculate the race start from the just completed lap
		startTime := lap.FinishTime - int64(pkt[model.KeyLapTime]*1000)
		current = &model.RaceSession{
			StartTime: startTime,
			TrackName: trackName,
			Laps:      make(map[int]*model.LapData),
		}
		ret[startTime] = current
		lap.StartTime = startTime
	} else {
		current = current.Clone()
		ret[current.StartTime] = current
		// lap N starts where lap N-1 finished
		if prev, ok := current.Laps[lapNumber-1]; ok {
			lap.StartTime = prev.FinishTime
		} else {
			lap.StartTime = current.StartTime
		}
		if current.TrackName == "" && trackName != "" {
			current.TrackName = trackName
		}
	}
	// a repeated report for the same lap replaces the earlier entry
	current.Laps[lapNumber] = lap
	return ret
}

// isNewRace decides whether the incoming lap belongs to a fresh race.
// This is a heuristic: a lap counter rollback or an explicit restart to
// lap 1 marks a session boundary.
func isNewRace(lapNumber, lastRecorded int) bool {
	if lapNumber < lastRecorded {
		return true
	}
	if lapNumber == 1 && lastRecorded > 1 {
		return true
	}
	return false
}

func hasLapSummary(pkt model.Packet) bool {
	for _, key := range lapSummaryKeys {
		if _, ok := pkt.Get(key); ok {
			return true
		}
	}
	return false
}

func getLapNumber(pkt model.Packet) int {
	if v, ok := pkt.Get(model.KeyCurrentLap); ok {
		return int(v)
	}
	return 0
}

func newLapData(pkt model.Packet, lapNumber int) *model.LapData {
	return &model.LapData{
		LapNumber:  lapNumber,
		FinishTime: pkt.Timestamp(),
		Volts:      pkt[model.KeyLapVolts],
		Amps:       pkt[model.KeyLapAmps],
		RPM:        pkt[model.KeyLapRPM],
		Speed:      pkt[model.KeyLapSpeed],
		AmpHours:   pkt[model.KeyLapAmpHours],
		LapTime:    pkt[model.KeyLapTime],
		Efficiency: pkt[model.KeyLapEff],
	}
}
