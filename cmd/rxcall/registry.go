package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rxcall/registry"
)

var errNoService = errors.New("a service name is required (--service or service in the config)")

func newRegisterCmd(a *app) *cobra.Command {
	var (
		weight  int
		version string
		ttl     int64
	)
	cmd := &cobra.Command{
		Use:   "register <addr>",
		Short: "Register an instance of the service and keep it alive until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Service == "" {
				return errNoService
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg, closeReg, err := a.newRegistry(ctx)
			if err != nil {
				return err
			}
			defer closeReg()

			instance := registry.ServiceInstance{Addr: args[0], Weight: weight, Version: version}
			if err := reg.Register(ctx, a.cfg.Service, instance, ttl); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s as %s\n", instance.URL(), a.cfg.Service)

			<-ctx.Done()
			// The signal context is done; deregister under the command's own.
			return reg.Deregister(cmd.Context(), a.cfg.Service, instance.Addr)
		},
	}
	cmd.Flags().IntVar(&weight, "weight", 1, "load balancing weight")
	cmd.Flags().StringVar(&version, "version", "", "instance version")
	cmd.Flags().Int64Var(&ttl, "ttl", 10, "lease TTL in seconds")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the instances of the service every time they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Service == "" {
				return errNoService
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg, closeReg, err := a.newRegistry(ctx)
			if err != nil {
				return err
			}
			defer closeReg()

			current, err := reg.Discover(ctx, a.cfg.Service)
			if err != nil && !errors.Is(err, registry.ErrNoInstances) {
				return err
			}
			printInstances(cmd, current)
			for instances := range reg.Watch(ctx, a.cfg.Service) {
				printInstances(cmd, instances)
			}
			return nil
		},
	}
}

func printInstances(cmd *cobra.Command, instances []registry.ServiceInstance) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d instance(s)\n", len(instances))
	for _, in := range instances {
		fmt.Fprintf(out, "  %s weight=%d version=%s\n", in.URL(), in.Weight, in.Version)
	}
}
