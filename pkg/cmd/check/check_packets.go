package check

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/model"
)

const maxLineSize = 1024 * 1024

// the wire keys a healthy logger is expected to send
var knownKeys = []string{
	model.KeyTime, model.KeyTimestampAlt,
	model.KeySpeed, model.KeyVoltage, model.KeyVoltageLower,
	model.KeyCurrent, model.KeyAmpHours, model.KeyRPM,
	model.KeyThrottle, model.KeyBrake,
	model.KeyTemp1, model.KeyTemp2,
	model.KeyLat, model.KeyLon, model.KeyLatAlt, model.KeyLonAlt,
	model.KeyCurrentLap, model.KeyLapVolts, model.KeyLapAmps,
	model.KeyLapRPM, model.KeyLapSpeed, model.KeyLapAmpHours,
	model.KeyLapTime, model.KeyLapEff,
	model.KeyTrackName,
}

func NewCheckPacketsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packets file",
		Short: "checks the records of a recording file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkPackets(args[0])
		},
	}
	return cmd
}

func checkPackets(fileName string) error {
	logger := log.Default().Named("check")
	docs, malformed, err := parseFile(fileName)
	if err != nil {
		return err
	}
	logger.Info("Parsed file",
		log.String("file", fileName),
		log.Int("records", len(docs)),
		log.Int("malformed", malformed))
	if len(docs) == 0 {
		return nil
	}

	reportCoverage(logger, docs)
	reportUnknownKeys(logger, docs)
	reportTimeline(logger, docs)
	return nil
}

// parseFile reads one record per line. Malformed lines are counted, not
// fatal.
func parseFile(fileName string) (docs []any, malformed int, err error) {
	f, err := os.Open(fileName)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		doc, pErr := oj.Parse(line)
		if pErr != nil {
			malformed++
			continue
		}
		docs = append(docs, doc)
	}
	return docs, malformed, scanner.Err()
}

// reportCoverage counts how many records carry each known key.
func reportCoverage(logger *log.Logger, docs []any) {
	total := len(docs)
	for _, key := range knownKeys {
		path, err := jp.ParseString(fmt.Sprintf("$[*].%s", key))
		if err != nil {
			logger.Error("bad coverage path", log.String("key", key), log.ErrorField(err))
			continue
		}
		count := len(path.Get(docs))
		if count == 0 {
			continue
		}
		logger.Info("coverage",
			log.String("key", key),
			log.Int("count", count),
			log.Float64("pct", 100*float64(count)/float64(total)))
	}
}

func reportUnknownKeys(logger *log.Logger, docs []any) {
	keys := lo.Uniq(lo.FlatMap(docs, func(doc any, _ int) []string {
		m, ok := doc.(map[string]any)
		if !ok {
			return nil
		}
		return lo.Keys(m)
	}))
	unknown := lo.Without(keys, knownKeys...)
	sort.Strings(unknown)
	for _, key := range unknown {
		logger.Warn("unexpected key", log.String("key", key))
	}
}

// reportTimeline flags records whose timestamps are missing, duplicated or
// going backwards.
func reportTimeline(logger *log.Logger, docs []any) {
	var missing, duplicates, regressions int
	var firstTs, lastTs int64
	for _, doc := range docs {
		m, ok := doc.(map[string]any)
		if !ok {
			continue
		}
		ts := model.RawRecord(m).Timestamp()
		if ts == 0 {
			missing++
			continue
		}
		if firstTs == 0 {
			firstTs = ts
		}
		switch {
		case lastTs != 0 && ts == lastTs:
			duplicates++
		case lastTs != 0 && ts < lastTs:
			regressions++
		}
		lastTs = ts
	}
	logger.Info("timeline",
		log.Time("first", time.UnixMilli(firstTs)),
		log.Time("last", time.UnixMilli(lastTs)),
		log.Int("missingTs", missing),
		log.Int("duplicates", duplicates),
		log.Int("regressions", regressions))
}
