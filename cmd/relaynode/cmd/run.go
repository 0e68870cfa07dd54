package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dronemesh/relaynode/cmd/relaynode/internal/config"
	"github.com/dronemesh/relaynode/core/events"
	"github.com/dronemesh/relaynode/core/proto"
	"github.com/dronemesh/relaynode/device/node"
	"github.com/dronemesh/relaynode/device/observability/mqttsink"
	"github.com/dronemesh/relaynode/device/observability/topology"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the demo file-server and media-server nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDemo(cmd.Context())
	},
}

func runDemo(ctx context.Context) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	sink, stopSink, err := buildSink(cfg.Observability, logger)
	if err != nil {
		return fmt.Errorf("starting observability sinks: %w", err)
	}
	if stopSink != nil {
		defer stopSink()
	}

	fileID := proto.NodeID(cfg.FileNode.ID)
	mediaID := proto.NodeID(cfg.MediaNode.ID)

	fileInbound := make(chan *proto.Packet, 64)
	mediaInbound := make(chan *proto.Packet, 64)
	fileCommands := make(chan node.Command, 8)
	mediaCommands := make(chan node.Command, 8)

	fileServer := node.NewFileServer(node.FileServerConfig{
		FS:     node.NewDirFS(cfg.FileNode.Dir, "./public"),
		Logger: logger,
	})
	mediaServer := node.NewMediaServer(node.MediaServerConfig{
		FS:     node.NewDirFS(cfg.MediaNode.Dir, "./media"),
		Logger: logger,
	})

	fileEngine := node.New(node.Config{
		Self:     fileID,
		Handler:  fileServer,
		Commands: fileCommands,
		Inbound:  fileInbound,
		Events:   sink,
		Logger:   logger,
	})
	mediaEngine := node.New(node.Config{
		Self:     mediaID,
		Handler:  mediaServer,
		Commands: mediaCommands,
		Inbound:  mediaInbound,
		Events:   sink,
		Logger:   logger,
	})

	// Install each node as the other's only neighbor before starting
	// either loop, so the first flood already has somewhere to go.
	fileCommands <- node.AddSender(mediaID, mediaInbound)
	mediaCommands <- node.AddSender(fileID, fileInbound)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Observability.Topology.Enabled {
		topo := topology.NewServer(topology.Config{
			Addr:    cfg.Observability.Topology.Addr,
			Routing: fileEngine.Routing(),
			Logger:  logger,
		})
		if err := topo.Start(gctx); err != nil {
			return fmt.Errorf("starting topology server: %w", err)
		}
		defer topo.Stop(context.Background())
	}

	g.Go(func() error { return runUntilCanceled(gctx, fileEngine.Run) })
	g.Go(func() error { return runUntilCanceled(gctx, mediaEngine.Run) })

	logger.Info("relaynode demo running", "file_node", fileID, "media_node", mediaID)
	return g.Wait()
}

// runUntilCanceled runs an Engine.Run-shaped function and treats context
// cancellation as a clean shutdown rather than an error.
func runUntilCanceled(ctx context.Context, run func(context.Context) error) error {
	if err := run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func buildSink(cfg config.ObservabilityConfig, logger *slog.Logger) (events.Sink, func(), error) {
	var stops []func()
	var sinks []events.Sink

	if cfg.MQTT.Enabled {
		s := mqttsink.New(mqttsink.Config{Broker: cfg.MQTT.Broker, Topic: cfg.MQTT.Topic, Logger: logger})
		if err := s.Start(); err != nil {
			return nil, nil, fmt.Errorf("starting mqttsink: %w", err)
		}
		sinks = append(sinks, s)
		stops = append(stops, func() { s.Close() })
	}

	stop := func() {
		for _, fn := range stops {
			fn()
		}
	}

	if len(sinks) == 0 {
		return events.Discard, stop, nil
	}
	return events.SinkFunc(func(e events.Event) {
		for _, s := range sinks {
			s.Emit(e)
		}
	}), stop, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
