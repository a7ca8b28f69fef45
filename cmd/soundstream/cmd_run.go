package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lisuiheng/soundstream-go/core"
	"github.com/lisuiheng/soundstream-go/logger"
	"github.com/lisuiheng/soundstream-go/metrics"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	autoRecord bool
	autoPlay   bool
)

func runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to the server and bridge audio until interrupted",
		Long: `Connect to the configured WebSocket server, forward encoded microphone frames and
status events, play received frames, and execute method calls sent by the server.
The connection is re-established with exponential backoff when it drops.`,
		Example: `  soundstream run
  soundstream run -c ./config/config.yaml --record --play
  SOUNDSTREAM_SYSTEM_NETWORK_WEBSOCKET_URL=ws://10.0.0.2:8000/ soundstream run`,
		RunE: runRun,
	}

	cmd.Flags().BoolVar(&autoRecord, "record", false, "Initialize and start the recorder on startup")
	cmd.Flags().BoolVar(&autoPlay, "play", false, "Initialize and start the player on startup")
	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}
	log := logger.Logger()
	defer logger.Info("Shutting down soundstream")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, reg := newMetrics(cfg)
	stream, err := newStream(cfg, m)
	if err != nil {
		return fmt.Errorf("failed to create sound stream: %w", err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			logger.Error("Failed to close sound stream", "error", err)
		}
	}()

	client, err := core.NewClient(cfg, stream, log, core.WithMetrics(m))
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	if err := autoStart(ctx, stream); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting soundstream service")
		return client.Run(gctx)
	})
	if reg != nil {
		srv := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path, reg,
			func() any { return client.GetStatus() },
			log.With("component", "metrics"))
		g.Go(func() error { return srv.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logger.Error("Service runtime error", "error", err)
		return err
	}
	logger.Info("Service shutdown completed")
	return nil
}

// autoStart 按命令行参数在本地启动录音和播放
func autoStart(ctx context.Context, stream *core.SoundStream) error {
	if autoPlay {
		if _, err := stream.InitializePlayer(core.PlayerArgs{}); err != nil {
			return fmt.Errorf("failed to initialize player: %w", err)
		}
		if _, err := stream.StartPlayer(); err != nil {
			return fmt.Errorf("failed to start player: %w", err)
		}
	}
	if autoRecord {
		res, err := stream.InitializeRecorder(ctx, core.RecorderArgs{})
		if err != nil {
			return fmt.Errorf("failed to initialize recorder: %w", err)
		}
		if !res.Success {
			return fmt.Errorf("failed to initialize recorder: microphone permission denied")
		}
		if _, err := stream.StartRecording(); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}
	}
	return nil
}
