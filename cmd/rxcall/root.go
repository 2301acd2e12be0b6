package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"rxcall/client"
	"rxcall/codec"
	"rxcall/config"
	"rxcall/loadbalance"
	"rxcall/logging"
	"rxcall/middleware"
	"rxcall/registry"
)

// app is the state shared by all subcommands once configuration is loaded.
type app struct {
	v      *viper.Viper
	cfg    config.Config
	logger *zap.Logger
}

// flagKeys maps command line flags to the configuration keys they override.
var flagKeys = map[string]string{
	"base-url":  "base_url",
	"service":   "service",
	"codec":     "codec",
	"log-level": "log.level",
	"async":     "async",
	"graphql":   "graphql",
	"scheduler": "scheduler.kind",
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: zap.NewNop()}
	var (
		cfgPath       string
		restoreGlobal = func() {}
	)

	cmd := &cobra.Command{
		Use:           "rxcall",
		Short:         "Issue HTTP calls and print their outcome as a reactive stream",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath != "" {
				a.v.SetConfigFile(cfgPath)
			}
			for flag, key := range flagKeys {
				if f := cmd.Flags().Lookup(flag); f != nil {
					if err := a.v.BindPFlag(key, f); err != nil {
						return err
					}
				}
			}
			if err := config.Load(cmd.Context(), a.v); err != nil {
				return err
			}
			a.cfg = config.FromViper(a.v)

			logger, _, err := logging.New(a.cfg.Log.Level, a.cfg.Log.Dev)
			if err != nil {
				return err
			}
			a.logger = logger
			restoreGlobal = logging.ReplaceGlobals(logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
			restoreGlobal()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (yaml|toml|json)")
	cmd.PersistentFlags().String("base-url", "", "base URL of the remote service")
	cmd.PersistentFlags().String("service", "", "service name to discover when no base URL is set")
	cmd.PersistentFlags().String("codec", "json", "body codec: json or proto")
	cmd.PersistentFlags().String("log-level", "info", "log level")

	cmd.AddCommand(newCallCmd(a))
	cmd.AddCommand(newRegisterCmd(a))
	cmd.AddCommand(newWatchCmd(a))

	cmd.Run = func(cmd *cobra.Command, args []string) { _ = cmd.Help() }
	return cmd
}

// newRegistry builds the configured registry. Static registries are seeded
// with registry.endpoints as the instances of the configured service.
func (a *app) newRegistry(ctx context.Context) (registry.Registry, func(), error) {
	switch a.cfg.Registry.Kind {
	case "etcd":
		reg, err := registry.NewEtcdRegistry(a.cfg.Registry.Endpoints, a.logger)
		if err != nil {
			return nil, nil, err
		}
		return reg, func() { _ = reg.Close() }, nil
	case "static", "":
		reg := registry.NewStaticRegistry()
		for _, addr := range a.cfg.Registry.Endpoints {
			if err := reg.Register(ctx, a.cfg.Service, registry.ServiceInstance{Addr: addr, Weight: 1}, 0); err != nil {
				return nil, nil, err
			}
		}
		return reg, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown registry kind %q", a.cfg.Registry.Kind)
	}
}

// newClient builds an HTTP client from the loaded configuration.
func (a *app) newClient(ctx context.Context) (*client.Client, func(), error) {
	if err := config.CheckConfigValidity(a.v); err != nil {
		return nil, nil, err
	}
	ct, err := codec.ParseType(a.cfg.Codec)
	if err != nil {
		return nil, nil, err
	}

	mws := []middleware.Middleware{
		middleware.LoggingMiddleware(a.logger),
		middleware.RequestIDMiddleware(),
	}
	if a.cfg.RateLimit.RPS > 0 {
		mws = append(mws, middleware.RateLimitMiddleware(a.cfg.RateLimit.RPS, a.cfg.RateLimit.Burst))
	}
	if a.cfg.Timeout > 0 {
		mws = append(mws, middleware.TimeOutMiddleware(a.cfg.Timeout))
	}
	opts := []client.Option{
		client.WithLogger(a.logger),
		client.WithCodec(codec.GetCodec(ct)),
		client.WithMiddleware(mws...),
	}

	closeFn := func() {}
	if a.cfg.BaseURL != "" {
		opts = append(opts, client.WithBaseURL(a.cfg.BaseURL))
	} else {
		reg, closeReg, err := a.newRegistry(ctx)
		if err != nil {
			return nil, nil, err
		}
		bal, err := loadbalance.New(a.cfg.Balancer)
		if err != nil {
			closeReg()
			return nil, nil, err
		}
		opts = append(opts, client.WithDiscovery(reg, bal, a.cfg.Service))
		closeFn = closeReg
	}

	c, err := client.New(opts...)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return c, closeFn, nil
}
