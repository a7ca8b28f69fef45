package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lisuiheng/soundstream-go/audio"
	"github.com/lisuiheng/soundstream-go/core"
	"github.com/lisuiheng/soundstream-go/logger"
	"github.com/spf13/cobra"
)

var loopbackDuration time.Duration

func loopbackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loopback",
		Short: "Play the microphone back through the speaker via the Opus codec",
		Long: `Capture from the default microphone, encode each 20 ms frame with Opus, decode it
again and play it on the default output device. Useful for checking devices and
codec settings without a server.`,
		Example: `  soundstream loopback
  soundstream loopback -d 10s
  SOUNDSTREAM_AUDIO_BACKEND=gopus soundstream loopback`,
		RunE: runLoopback,
	}

	cmd.Flags().DurationVarP(&loopbackDuration, "duration", "d", 0, "How long to run (0 = until Ctrl+C)")
	return cmd
}

func runLoopback(cmd *cobra.Command, args []string) error {
	cfg, err := setup(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if loopbackDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, loopbackDuration)
		defer cancel()
	}

	m, _ := newMetrics(cfg)
	stream, err := newStream(cfg, m)
	if err != nil {
		return fmt.Errorf("failed to create sound stream: %w", err)
	}
	defer stream.Close()

	if _, err := stream.InitializePlayer(core.PlayerArgs{}); err != nil {
		return fmt.Errorf("failed to initialize player: %w", err)
	}
	if _, err := stream.StartPlayer(); err != nil {
		return fmt.Errorf("failed to start player: %w", err)
	}

	res, err := stream.InitializeRecorder(ctx, core.RecorderArgs{})
	if err != nil {
		return fmt.Errorf("failed to initialize recorder: %w", err)
	}
	if !res.Success {
		return fmt.Errorf("microphone permission denied")
	}
	if _, err := stream.StartRecording(); err != nil {
		return fmt.Errorf("failed to start recording: %w", err)
	}
	logger.Info("Loopback running, press Ctrl+C to stop")

	var frames, failed int
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			if _, err := stream.StopRecording(); err != nil {
				logger.Warn("Failed to stop recording", "error", err)
			}
			logger.Info("Loopback finished",
				"elapsed", time.Since(start).Truncate(time.Millisecond),
				"frames", frames,
				"failed", failed,
				"dropped_events", stream.DroppedEvents())
			return nil

		case ev, ok := <-stream.Events():
			if !ok {
				return nil
			}
			if ev.Name != audio.EventDataPeriod {
				logger.Info("Status event", "name", ev.Name, "data", ev.Data)
				continue
			}
			// 播放在本协程执行，不占用采集线程
			if _, err := stream.WriteChunk(ev.Data.([]byte)); err != nil {
				failed++
				logger.Warn("Failed to play frame", "kind", audio.KindOf(err), "error", err)
				continue
			}
			frames++
		}
	}
}
