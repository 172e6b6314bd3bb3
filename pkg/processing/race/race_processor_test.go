//nolint:thelper,whitespace,lll,funlen,gocritic,dupl // ok for tests
package race

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/echook/telemetry-manager-go/pkg/model"
)

// lapPacket builds a packet carrying a full lap summary.
func lapPacket(ts int64, lap int, lapTime float64) model.Packet {
	return model.Packet{
		model.KeyTime:        float64(ts),
		model.KeyCurrentLap:  float64(lap),
		model.KeyLapVolts:    23.5,
		model.KeyLapAmps:     10.1,
		model.KeyLapRPM:      1800,
		model.KeyLapSpeed:    8.2,
		model.KeyLapAmpHours: 0.4,
		model.KeyLapTime:     lapTime,
		model.KeyLapEff:      55,
	}
}

func expectedLap(lap int, start, finish int64, lapTime float64) *model.LapData {
	return &model.LapData{
		LapNumber:  lap,
		StartTime:  start,
		FinishTime: finish,
		Volts:      23.5,
		Amps:       10.1,
		RPM:        1800,
		Speed:      8.2,
		AmpHours:   0.4,
		LapTime:    lapTime,
		Efficiency: 55,
	}
}

func TestReduce_ExtractValues(t *testing.T) {
	pkt := lapPacket(600000, 3, 90)
	assert.Equal(t, 3, getLapNumber(pkt))
	assert.True(t, hasLapSummary(pkt))

	plain := model.Packet{model.KeyTime: 600000, model.KeySpeed: 8.0}
	assert.Equal(t, 0, getLapNumber(plain))
	assert.False(t, hasLapSummary(plain))
}

func TestReduce_IgnoresPacketsWithoutSummary(t *testing.T) {
	sessions := make(model.SessionMap)
	got := Reduce(sessions, model.Packet{model.KeyTime: 600000, model.KeySpeed: 8.0}, "")
	assert.Empty(t, got)
}

func TestReduce_LapZeroIsSentinel(t *testing.T) {
	sessions := make(model.SessionMap)
	got := Reduce(sessions, lapPacket(600000, 0, 90), "")
	assert.Empty(t, got)
}

func TestReduce_FirstLapStartsRace(t *testing.T) {
	got := Reduce(make(model.SessionMap), lapPacket(600000, 1, 90), "")

	assert.Equal(t, model.SessionMap{
		510000: {
			StartTime: 510000,
			Laps: map[int]*model.LapData{
				1: expectedLap(1, 510000, 600000, 90),
			},
		},
	}, got)
}

func TestSessionProcessor_LapChaining(t *testing.T) {
	p := NewSessionProcessor()
	packets := []model.Packet{
		lapPacket(600000, 1, 90),
		lapPacket(690000, 2, 90),
		lapPacket(780000, 3, 90),
	}
	for i := range packets {
		p.ProcessPacket(packets[i], "")
	}

	assert.Equal(t, model.SessionMap{
		510000: {
			StartTime: 510000,
			Laps: map[int]*model.LapData{
				1: expectedLap(1, 510000, 600000, 90),
				2: expectedLap(2, 600000, 690000, 90),
				3: expectedLap(3, 690000, 780000, 90),
			},
		},
	}, p.Sessions)
}

func TestReduce_MissingPreviousLapFallsBackToRaceStart(t *testing.T) {
	p := NewSessionProcessor()
	p.ProcessPacket(lapPacket(600000, 1, 90), "")
	// lap 2 never arrives
	p.ProcessPacket(lapPacket(780000, 3, 90), "")

	session := p.Sessions.Current()
	assert.Equal(t, int64(510000), session.Laps[3].StartTime)
	assert.Equal(t, int64(780000), session.Laps[3].FinishTime)
}

func TestReduce_RollbackStartsNewRace(t *testing.T) {
	p := NewSessionProcessor()
	p.ProcessPacket(lapPacket(600000, 4, 90), "")
	p.ProcessPacket(lapPacket(690000, 5, 90), "")
	// counter rolled back without reaching 1
	p.ProcessPacket(lapPacket(900000, 3, 80), "")

	assert.Len(t, p.Sessions, 2)
	current := p.Sessions.Current()
	assert.Equal(t, int64(820000), current.StartTime)
	assert.Equal(t, 3, current.LastRecordedLap())
}

func TestReduce_RestartToLapOneStartsNewRace(t *testing.T) {
	p := NewSessionProcessor()
	p.ProcessPacket(lapPacket(600000, 1, 90), "")
	p.ProcessPacket(lapPacket(690000, 2, 90), "")
	p.ProcessPacket(lapPacket(780000, 3, 90), "")
	p.ProcessPacket(lapPacket(1000000, 1, 85), "")

	assert.Len(t, p.Sessions, 2)
	current := p.Sessions.Current()
	assert.Equal(t, int64(915000), current.StartTime)
	assert.Equal(t, map[int]*model.LapData{
		1: expectedLap(1, 915000, 1000000, 85),
	}, current.Laps)
}

func TestReduce_DuplicateLapReplaces(t *testing.T) {
	p := NewSessionProcessor()
	p.ProcessPacket(lapPacket(600000, 1, 90), "")
	p.ProcessPacket(lapPacket(605000, 1, 95), "")

	session := p.Sessions.Current()
	assert.Len(t, session.Laps, 1)
	assert.Equal(t, int64(605000), session.Laps[1].FinishTime)
	assert.Equal(t, 95.0, session.Laps[1].LapTime)
}

func TestReduce_TrackNameBackfill(t *testing.T) {
	p := NewSessionProcessor()
	p.ProcessPacket(lapPacket(600000, 1, 90), "")
	assert.Equal(t, "", p.Sessions.Current().TrackName)

	p.ProcessPacket(lapPacket(690000, 2, 90), "Goodwood")
	assert.Equal(t, "Goodwood", p.Sessions.Current().TrackName)

	// an already known track name is kept
	p.ProcessPacket(lapPacket(780000, 3, 90), "Blyton Park")
	assert.Equal(t, "Goodwood", p.Sessions.Current().TrackName)
}

func TestReplay_RebuildsAcrossRaces(t *testing.T) {
	sessions := Replay([]model.Packet{
		lapPacket(600000, 1, 90),
		lapPacket(690000, 2, 90),
		lapPacket(1000000, 1, 85),
	}, []string{"", "Goodwood", ""})

	assert.Len(t, sessions, 2)
	assert.Equal(t, "Goodwood", sessions[510000].TrackName)
	assert.Equal(t, int64(915000), sessions.Current().StartTime)
}

func TestReduce_DoesNotModifyInput(t *testing.T) {
	first := Reduce(make(model.SessionMap), lapPacket(600000, 1, 90), "")
	second := Reduce(first, lapPacket(690000, 2, 90), "")

	assert.Len(t, first.Current().Laps, 1)
	assert.Len(t, second.Current().Laps, 2)
}
