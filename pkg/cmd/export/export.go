package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/config"
	"github.com/echook/telemetry-manager-go/pkg/fetch"
	"github.com/echook/telemetry-manager-go/pkg/model"
)

var (
	startArg string
	endArg   string
	output   string
)

func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export channel",
		Short: "exports the archived data of a channel as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportChannel(cmd.Context(), args[0])
		},
	}
	cmd.Flags().StringVar(&startArg,
		"start",
		"",
		"begin of the export range (RFC3339, date or epoch millis)")
	cmd.Flags().StringVar(&endArg,
		"end",
		"",
		"end of the export range (RFC3339, date or epoch millis)")
	cmd.Flags().StringVarP(&output,
		"output",
		"o",
		"",
		"output file (default: stdout)")
	cmd.Flags().IntVar(&config.PageSize,
		"page-size",
		0,
		"page size for history fetches (0: builtin default)")
	return cmd
}

func exportChannel(ctx context.Context, channelName string) error {
	logger := log.DevLogger(
		os.Stderr,
		log.InfoLevel,
		log.WithCaller(true),
		log.AddCallerSkip(1))
	log.ResetDefault(logger)

	var start int64
	if startArg != "" {
		v, err := parseTimeArg(startArg)
		if err != nil {
			return err
		}
		start = v
	}
	end := null.Val[int64]{}
	if endArg != "" {
		v, err := parseTimeArg(endArg)
		if err != nil {
			return err
		}
		end = null.From(v)
	}

	opts := []fetch.Option{fetch.WithToken(config.Token)}
	if config.PageSize > 0 {
		opts = append(opts, fetch.WithPageSize(config.PageSize))
	}
	client := fetch.NewClient(config.URL, channelName, opts...)
	records, err := client.FetchRange(ctx, start, end)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		log.Warn("no records in range", log.String("channel", channelName))
		return nil
	}

	out := io.Writer(os.Stdout)
	target := "stdout"
	if output != "" {
		f, cErr := os.Create(output)
		if cErr != nil {
			return cErr
		}
		defer f.Close()
		out = f
		target = output
	}
	if err = writeCSV(out, records); err != nil {
		return err
	}
	log.Info("Export done",
		log.Int("records", len(records)),
		log.String("output", target))
	return nil
}

// parseTimeArg accepts epoch millis, RFC3339 or a plain date (UTC).
func parseTimeArg(arg string) (int64, error) {
	if millis, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return millis, nil
	}
	if ts, err := time.Parse(time.RFC3339, arg); err == nil {
		return ts.UnixMilli(), nil
	}
	if day, err := time.ParseInLocation(time.DateOnly, arg, time.UTC); err == nil {
		return day.UnixMilli(), nil
	}
	return 0, fmt.Errorf("cannot parse time value: %s", arg)
}

type row struct {
	pkt   model.Packet
	track string
}

// writeCSV emits one line per record. The column set is the union of all
// keys seen in the range, loggers may add or drop values mid-session.
func writeCSV(w io.Writer, records []model.RawRecord) error {
	rows := lo.Map(records, func(rec model.RawRecord, _ int) row {
		pkt, trackName := rec.Normalize()
		return row{pkt: pkt, track: trackName}
	})
	keys := lo.Uniq(lo.FlatMap(rows, func(r row, _ int) []string {
		return lo.Keys(r.pkt)
	}))
	keys = lo.Without(keys, model.KeyTime)
	sort.Strings(keys)
	cols := append([]string{model.KeyTime}, keys...)
	hasTrack := lo.SomeBy(rows, func(r row) bool { return r.track != "" })
	if hasTrack {
		cols = append(cols, model.KeyTrackName)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return err
	}
	line := make([]string, len(cols))
	for _, r := range rows {
		for i, col := range cols {
			line[i] = ""
			if col == model.KeyTrackName {
				line[i] = r.track
				continue
			}
			if v, ok := r.pkt.Get(col); ok {
				line[i] = decimal.NewFromFloat(v).String()
			}
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
