// Command brokerpcd hosts a single service's action handlers behind the
// Redis gateway transport. It is a thin CLI shell around the server
// package: everything it does is also reachable by embedding the server
// package directly, but most deployments run this binary as-is,
// registering handlers via a settings-referenced plugin is out of scope
// (spec §6, "no dynamic handler loading").
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dermesser/brokerpc/internal/config"
	"github.com/dermesser/brokerpc/internal/rpclog"
	"github.com/dermesser/brokerpc/serializer"
	"github.com/dermesser/brokerpc/server"
	"github.com/dermesser/brokerpc/server/metrics"
	"github.com/dermesser/brokerpc/transport/redis"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		settingsPath  string
		forkOverride  int
		noRespawn     bool
		watchPaths    []string
		usePrometheus bool
		printConfig   bool
	)

	cmd := &cobra.Command{
		Use:   "brokerpcd",
		Short: "Run a service behind the RPC-over-broker transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ResolveSettingsPath(settingsPath)
			if err != nil {
				return err
			}
			settings, err := config.Load(path)
			if err != nil {
				return err
			}
			if forkOverride > 0 {
				settings.Server.Fork = forkOverride
			}
			if noRespawn {
				settings.Server.NoRespawn = true
			}
			if len(watchPaths) > 0 {
				settings.Server.WatchPaths = watchPaths
			}
			if printConfig {
				dump, err := settings.Dump()
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), dump)
				return nil
			}
			return runServer(cmd.Context(), settings, usePrometheus)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&settingsPath, "settings", "", "path to a settings YAML file (defaults to $BROKERPC_SETTINGS)")
	flags.IntVar(&forkOverride, "fork", 0, "number of worker processes to run (overrides settings)")
	flags.BoolVar(&noRespawn, "no-respawn", false, "exit instead of respawning a crashed worker")
	flags.StringSliceVar(&watchPaths, "use-file-watcher", nil, "paths to watch for changes that trigger a graceful restart")
	flags.BoolVar(&usePrometheus, "prometheus", false, "record metrics with a Prometheus registry instead of discarding them")
	flags.BoolVar(&printConfig, "print-config", false, "print the resolved settings module as YAML and exit")

	bindEnv(flags)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// bindEnv lets every flag also be set via BROKERPC_<FLAG_NAME>, matching
// the settings-module resolution the rest of the CLI uses.
func bindEnv(flags *pflag.FlagSet) {
	v := viper.New()
	v.SetEnvPrefix("brokerpc")
	v.AutomaticEnv()
	flags.VisitAll(func(f *pflag.Flag) {
		envKey := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if val := v.GetString(envKey); val != "" && !f.Changed {
			flags.Set(f.Name, val)
		}
	})
}

func runServer(ctx context.Context, settings config.Settings, usePrometheus bool) error {
	level := parseLevel(settings.Logging.Level)
	logger := rpclog.New(level, nil, settings.Logging.CensoredFields)

	backendCfg, err := backendConfigFromSettings(settings.Transport)
	if err != nil {
		return err
	}
	backend, err := redis.NewBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("dialing broker: %w", err)
	}
	defer backend.Close()

	gwCfg := redis.Config{
		Backend:          backend,
		Serializer:       serializer.NewMsgpackSerializer(),
		ProtocolVersion:  3,
		QueueCapacity:    settings.Transport.QueueCapacity,
		QueueFullRetries: settings.Transport.QueueFullRetries,
		MaxMessageBytes:  settings.Transport.MaxMessageBytes,
		ChunkThreshold:   settings.Transport.ChunkThreshold,
		WarnLargerThan:   settings.Transport.WarnLargerThan,
		ChunkGapWait:     5 * time.Second,
		Logger:           logger,
	}

	var rec metrics.Recorder = metrics.NoOp{}
	if usePrometheus {
		rec = metrics.NewPrometheus(nil)
	}

	srv := server.New(server.Config{
		ServiceName:        settings.ServiceName,
		ServerFactory:      redis.ServerFactory{Config: gwCfg},
		ClientFactory:      redis.ClientFactory{Config: gwCfg, ClientUUID: newClientUUID()},
		ReceiveTimeout:     time.Duration(settings.Transport.ReceiveTimeoutSec * float64(time.Second)),
		HarakiriTimeout:    time.Duration(settings.Server.HarakiriTimeout * float64(time.Second)),
		ShutdownGrace:      time.Duration(settings.Server.ShutdownGraceSec * float64(time.Second)),
		HeartbeatPath:      settings.Server.HeartbeatPath,
		MaxTracebackLength: settings.Logging.TracebackLength,
		Metrics:            rec,
		Logger:             logger,
	})

	sup := &server.Supervisor{
		Server:        srv,
		ForkCount:     settings.Server.Fork,
		NoRespawn:     settings.Server.NoRespawn,
		ShutdownGrace: time.Duration(settings.Server.ShutdownGraceSec * float64(time.Second)),
		ReloadPaths:   settings.Server.WatchPaths,
		Logger:        logger,
	}
	return sup.Run(ctx)
}

func backendConfigFromSettings(t config.TransportSettings) (redis.BackendConfig, error) {
	kind := redis.BackendStandalone
	switch {
	case t.SentinelName != "":
		kind = redis.BackendSentinel
	case len(t.Hosts) > 1:
		kind = redis.BackendMasterReplica
	}
	var tlsCfg *tls.Config
	if t.TLS {
		tlsCfg = &tls.Config{}
	}
	return redis.BackendConfig{
		Kind:               kind,
		Addrs:              t.Hosts,
		SentinelMasterName: t.SentinelName,
		Username:           t.Username,
		Password:           t.Password,
		TLS:                tlsCfg,
	}, nil
}

func parseLevel(s string) rpclog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return rpclog.LevelDebug
	case "info":
		return rpclog.LevelInfo
	case "warn", "warning":
		return rpclog.LevelWarnings
	case "error":
		return rpclog.LevelErrors
	case "none":
		return rpclog.LevelNone
	default:
		return rpclog.LevelInfo
	}
}

func newClientUUID() string {
	return uuid.NewString()
}
