package replay

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/echook/telemetry-manager-go/log"
	"github.com/echook/telemetry-manager-go/pkg/config"
	"github.com/echook/telemetry-manager-go/pkg/utils"
)

var (
	speed         int
	channelName   string
	fastForward   string
	loggerVersion string
)

func NewReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay file",
		Short: "replays a recording against a server",
		Long: `Reads a file containing one telemetry record per line and sends the
records to the server's ingest endpoint, pacing them by their timestamps.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), args[0])
		},
	}
	cmd.Flags().IntVar(&speed,
		"speed",
		1,
		"Replay speed (0 means: go as fast as possible)")
	cmd.Flags().StringVarP(&channelName,
		"channel",
		"c",
		"",
		"channel to publish the records on")
	cmd.Flags().StringVar(&fastForward,
		"fast-forward",
		"",
		"replay this duration with max speed")
	cmd.Flags().StringVar(&loggerVersion,
		"logger-version",
		"",
		"logger version to announce on connect")
	cmd.Flags().StringVar(&config.LogLevel,
		"log-level",
		"info",
		"controls the log level (debug, info, warn, error, fatal)")
	//nolint:errcheck // flag is defined right above
	cmd.MarkFlagRequired("channel")
	return cmd
}

func runReplay(ctx context.Context, fileName string) error {
	logger := log.DevLogger(
		os.Stderr,
		parseLogLevel(config.LogLevel, log.InfoLevel),
		log.WithCaller(true),
		log.AddCallerSkip(1))
	log.ResetDefault(logger)

	var ff time.Duration
	if fastForward != "" {
		var err error
		if ff, err = time.ParseDuration(fastForward); err != nil {
			return err
		}
	}
	task := NewReplayTask(channelName,
		WithSpeed(speed),
		WithFastForward(ff),
		WithLoggerVersion(loggerVersion))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if timeout, err := time.ParseDuration(config.WaitForServices); err == nil && timeout > 0 {
		if err := utils.WaitForHTTPResponse(config.URL+"/healthz", timeout); err != nil {
			log.Warn("server not reachable yet", log.ErrorField(err))
		}
	}
	return task.Replay(ctx, fileName)
}

func parseLogLevel(l string, defaultVal log.Level) log.Level {
	level, err := log.ParseLevel(l)
	if err != nil {
		return defaultVal
	}
	return level
}
