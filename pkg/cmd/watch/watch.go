package watch

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aarondl/opt/null"
	"github.com/spf13/cobra"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/config"
	"github.com/echook/telemetry-manager-go/pkg/dashboard"
	"github.com/echook/telemetry-manager-go/pkg/fetch"
	"github.com/echook/telemetry-manager-go/pkg/model"
	"github.com/echook/telemetry-manager-go/pkg/processing"
	"github.com/echook/telemetry-manager-go/pkg/utils"
)

const statusInterval = 5 * time.Second

var preload string

func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch channel",
		Short: "follows the live data of a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchChannel(cmd.Context(), args[0])
		},
	}
	cmd.Flags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	cmd.Flags().StringVar(&config.SpeedUnit,
		"speed-unit",
		"mph",
		"unit for displaying speed values (mph, kph, ms)")
	cmd.Flags().StringVar(&config.TempUnit,
		"temp-unit",
		"c",
		"unit for displaying temperature values (c, f)")
	cmd.Flags().IntVar(&config.BufferCapacity,
		"buffer-capacity",
		0,
		"max number of records kept in memory (0: builtin default)")
	cmd.Flags().StringVar(&preload,
		"preload",
		"",
		"amount of history to load before going live (e.g. 30m)")
	return cmd
}

func watchChannel(ctx context.Context, channelName string) error {
	logger := log.DevLogger(
		os.Stderr,
		parseLogLevel(config.LogLevel, log.InfoLevel),
		log.WithCaller(true),
		log.AddCallerSkip(1))
	log.ResetDefault(logger)

	units, err := model.ParseUnits(config.SpeedUnit, config.TempUnit)
	if err != nil {
		return err
	}
	procOpts := []processing.ProcessorOption{processing.WithUnits(units)}
	if config.BufferCapacity > 0 {
		procOpts = append(procOpts, processing.WithCapacity(config.BufferCapacity))
	}

	client := fetch.NewClient(config.URL, channelName, fetch.WithToken(config.Token))
	d := dashboard.New(
		liveURL(config.URL, channelName),
		client,
		dashboard.WithProcessor(processing.NewProcessor(procOpts...)))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	waitForServer(liveURL(config.URL, channelName))

	if preload != "" {
		span, pErr := time.ParseDuration(preload)
		if pErr != nil {
			return pErr
		}
		start := time.Now().Add(-span).UnixMilli()
		count, lErr := d.LoadRange(ctx, start, null.Val[int64]{})
		if lErr != nil {
			log.Warn("could not preload history", log.ErrorField(lErr))
		} else {
			log.Info("history loaded", log.Int("records", count))
		}
	}

	log.Info("Watching channel", log.String("channel", channelName))
	go reportStatus(ctx, d.Processor())
	return d.Run(ctx)
}

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}

// waitForServer gives the server time to come up before the first dial.
// The reconnect loop covers later outages.
func waitForServer(wsURL string) {
	timeout, err := time.ParseDuration(config.WaitForServices)
	if err != nil || timeout <= 0 {
		return
	}
	addr, _ := utils.ExtractFromWebsocketURL(wsURL)
	if addr == "" {
		return
	}
	if err := utils.WaitForTCP(addr, timeout); err != nil {
		log.Warn("server not reachable yet", log.ErrorField(err))
	}
}

// liveURL converts the API base URL into the websocket location of the
// channel's live stream.
func liveURL(baseURL, channelName string) string {
	wsBase := strings.Replace(baseURL, "http", "ws", 1)
	return wsBase + "/api/v1/channels/" + channelName + "/live"
}

// reportStatus prints a condensed view of the current state in regular
// intervals.
func reportStatus(ctx context.Context, p *processing.Processor) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			latest := p.Latest()
			if latest == nil {
				log.Info("no data yet")
				continue
			}
			fields := []log.Field{
				log.Time("ts", time.UnixMilli(latest.Timestamp())),
				log.Bool("stale", p.Stale()),
			}
			if v, ok := latest.Get(model.KeySpeed); ok {
				fields = append(fields, log.Float64("speed", v))
			}
			if v, ok := latest.Get(model.KeyVoltage); ok {
				fields = append(fields, log.Float64("voltage", v))
			}
			if v, ok := latest.Get(model.KeyCurrent); ok {
				fields = append(fields, log.Float64("current", v))
			}
			if cur := p.Sessions().Current(); cur != nil {
				fields = append(fields, log.Int("lap", cur.LastRecordedLap()))
			}
			log.Info("live", fields...)
		}
	}
}
