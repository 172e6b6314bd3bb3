package check

import (
	"bufio"
	"bytes"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
	"github.com/echook/telemetry-manager-go/pkg/processing"
	"github.com/echook/telemetry-manager-go/pkg/processing/history"
)

func NewCheckSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions file",
		Short: "rebuilds the race sessions from a recording file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkSessions(args[0])
		},
	}
	return cmd
}

func checkSessions(fileName string) error {
	logger := log.Default().Named("check")
	records, err := readRecords(fileName)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		logger.Warn("no records in file", log.String("file", fileName))
		return nil
	}

	p := processing.NewProcessor(processing.WithCapacity(len(records)))
	count := p.ProcessBatch(records, history.Replace)
	logger.Info("Processed records",
		log.Int("total", len(records)),
		log.Int("buffered", count))

	sessions := p.Sessions()
	if len(sessions) == 0 {
		logger.Info("no races detected")
		return nil
	}
	current := sessions.Current()
	for _, start := range sessions.OrderedStarts() {
		s := sessions[start]
		logger.Info("race",
			log.Time("start", time.UnixMilli(s.StartTime)),
			log.String("track", s.TrackName),
			log.Int("laps", len(s.Laps)),
			log.Bool("current", s == current))
		for _, lap := range s.OrderedLaps() {
			logger.Info("lap",
				log.Int("lap", lap.LapNumber),
				log.Float64("lapTime", lap.LapTime),
				log.Float64("volts", lap.Volts),
				log.Float64("amps", lap.Amps),
				log.Float64("speed", lap.Speed))
		}
	}
	return nil
}

func readRecords(fileName string) ([]model.RawRecord, error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	ret := []model.RawRecord{}
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		rec, pErr := model.ParseRawRecord(line)
		if pErr != nil {
			continue
		}
		ret = append(ret, rec)
	}
	return ret, scanner.Err()
}
