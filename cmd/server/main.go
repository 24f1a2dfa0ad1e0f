package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"tcpchat/internal/audit"
	"tcpchat/internal/config"
	"tcpchat/internal/dispatch"
	"tcpchat/internal/events"
	"tcpchat/internal/gateway"
	"tcpchat/internal/logging"
	"tcpchat/internal/metrics"
	"tcpchat/internal/ops"
	"tcpchat/internal/policy"
	"tcpchat/internal/registry"
	"tcpchat/internal/room"
	"tcpchat/internal/store"
	"tcpchat/internal/transport"
)

const commandHelp = `Available client commands:
  #rooms     - List all chat rooms
  #join <r>  - Join room <r>
  #create <r>- Create new room
  #leave     - Leave current room
  #online    - List online users
  #whisper <user> <msg> - Private message
  #history [n] - Show recent messages
  #kick <u>  - (Admin) Kick user
  #ban <u>   - (Admin) Ban user
  #mute <u>  - (Admin) Mute user
  #exit      - Disconnect

`

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// A port argument overrides the environment, matching the original
	// `server [port]` invocation.
	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			fmt.Fprintf(os.Stderr, "Invalid port: %s\n", os.Args[1])
			os.Exit(1)
		}
		cfg.Port = port
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	cfg.LogConfig(logger)

	// Event publishing is optional; a broker that never comes up must not
	// keep the chat server down.
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		const maxRetries = 5
		for i := 0; i < maxRetries; i++ {
			publisher, err = events.Connect(cfg.NATSURL, logger)
			if err == nil {
				break
			}
			if i < maxRetries-1 {
				logger.Warn().Err(err).Int("attempt", i+1).Msg("NATS connect failed, retrying")
				time.Sleep(2 * time.Second)
			}
		}
		if publisher == nil {
			logger.Warn().Str("url", cfg.NATSURL).Msg("continuing without event publishing")
		}
	}

	m := metrics.New()
	reg := registry.New()
	rooms := room.NewManager()
	logger.Info().Str("default_room", room.General).Msg("room manager initialized")

	pol := policy.New(policy.Config{
		MaxConnectionsPerSecond: cfg.MaxConnectionsPerSecond,
		MaxMessagesPerMinute:    cfg.MaxMessagesPerMinute,
		MaxTotalConnections:     cfg.MaxTotalConnections,
		ConnectionTimeout:       cfg.ConnectionTimeout,
	})
	logger.Info().Msg("policy controller initialized")

	st := store.New(store.Config{
		MaxMessagesPerRoom: cfg.MaxMessagesPerRoom,
		MaxFileSizeBytes:   cfg.MaxFileSizeBytes(),
		LogDirectory:       cfg.LogDirectory,
		EnablePersistence:  cfg.EnablePersistence,
	}, logger, m)
	logger.Info().Bool("persistence", st.PersistenceEnabled()).Msg("message store initialized")

	d := dispatch.New(dispatch.Deps{
		Registry: reg,
		Rooms:    rooms,
		Policy:   pol,
		Store:    st,
		Metrics:  m,
		Audit:    audit.New(logger),
		Events:   publisher,
		Logger:   logger,
	})

	ts := transport.NewServer(transport.Config{
		Port:         cfg.Port,
		WriteTimeout: cfg.WriteTimeout,
	}, d, logger)
	d.SetSender(ts)

	if err := ts.Start(); err != nil {
		logger.Error().Err(err).Msg("failed to start chat server")
		os.Exit(1)
	}
	go d.RunIdleSweep(ctx)

	var opsSrv *ops.Server
	if cfg.OpsAddr != "" {
		opsSrv = ops.NewServer(ops.Deps{
			Registry:  reg,
			Rooms:     rooms,
			Store:     st,
			Metrics:   m,
			Transport: ts,
			Gateway:   gateway.New(ts, logger),
			Logger:    logger,
		})
		go func() {
			// The ops surface is a side door; losing it does not stop chat.
			if err := opsSrv.Start(cfg.OpsAddr); err != nil {
				logger.Error().Err(err).Msg("ops server failed")
			}
		}()
	}

	logger.Info().
		Int("port", cfg.Port).
		Int("workers", ts.PoolStats().Workers).
		Msg("chat server listening")
	fmt.Print(commandHelp)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	cancel()

	// Closing the transport first lets every disconnect reach the store
	// before the log file is flushed and released.
	ts.Stop()
	st.Close()

	if opsSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := opsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("ops shutdown failed")
		}
		shutdownCancel()
	}
	publisher.Close()

	logger.Info().Msg("server stopped")
}
