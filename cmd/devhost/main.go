// Command devhost runs a device host: a tree of devices with bound drivers,
// served to remote clients over a framed CBOR I/O protocol and reported to
// an external coordinator.
//
// Usage:
//
//	devhost [flags]
//
// Flags:
//
//	-config string            Configuration file path
//	-listen string            RPC listen address, "unix:/path" or "tcp:host:port"
//	-coordinator string       Coordinator address (stream) or broker URL (mqtt)
//	-coordinator-kind string  Coordinator link: none, stream or mqtt
//	-log-level string         Log level: debug, info, warn, error
//	-lock-debug               Panic on re-entrant tree lock acquisition
//	-mdns                     Advertise the host over mDNS
//	-interactive              Start the operator shell
//
// Examples:
//
//	# Serve on a unix socket without a coordinator
//	devhost -listen unix:/run/devhost.sock
//
//	# Report to an MQTT coordinator and advertise over mDNS
//	devhost -listen tcp::7000 -coordinator-kind mqtt -coordinator tcp://broker:1883 -mdns
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/devhost-project/devhost-go/cmd/devhost/interactive"
	"github.com/devhost-project/devhost-go/internal/config"
	"github.com/devhost-project/devhost-go/internal/logging"
	"github.com/devhost-project/devhost-go/pkg/version"
)

type flags struct {
	configFile      string
	listen          string
	coordinator     string
	coordinatorKind string
	logLevel        string
	lockDebug       bool
	mdns            bool
	interactive     bool
}

func parseFlags(args []string) (*flags, error) {
	var f flags
	fs := flag.NewFlagSet("devhost", flag.ContinueOnError)
	fs.StringVar(&f.configFile, "config", "", "Configuration file path")
	fs.StringVar(&f.listen, "listen", "", "RPC listen address, unix:/path or tcp:host:port")
	fs.StringVar(&f.coordinator, "coordinator", "", "Coordinator address (stream) or broker URL (mqtt)")
	fs.StringVar(&f.coordinatorKind, "coordinator-kind", "", "Coordinator link: none, stream, mqtt")
	fs.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.BoolVar(&f.lockDebug, "lock-debug", false, "Panic on re-entrant tree lock acquisition")
	fs.BoolVar(&f.mdns, "mdns", false, "Advertise the host over mDNS")
	fs.BoolVar(&f.interactive, "interactive", false, "Start the operator shell")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return &f, nil
}

// apply overrides cfg with the flags that were given.
func (f *flags) apply(cfg *config.Config) error {
	if f.listen != "" {
		network, address, ok := strings.Cut(f.listen, ":")
		if !ok || address == "" {
			return fmt.Errorf("invalid -listen %q: want unix:/path or tcp:host:port", f.listen)
		}
		cfg.RPC.Network, cfg.RPC.Address = network, address
	}
	if f.coordinatorKind != "" {
		cfg.Coordinator.Kind = f.coordinatorKind
	}
	if f.coordinator != "" {
		if cfg.Coordinator.Kind == config.CoordinatorMQTT {
			cfg.Coordinator.MQTT.Broker = f.coordinator
		} else {
			cfg.Coordinator.Address = f.coordinator
		}
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.lockDebug {
		cfg.Host.LockDebug = true
	}
	if f.mdns {
		cfg.Discovery.Enabled = true
	}
	return cfg.Validate()
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "devhost:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	f, err := parseFlags(args)
	if err != nil {
		return err
	}
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return err
	}
	if err := f.apply(cfg); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if f.interactive {
		// Keep logs off the prompt's stdout.
		cfg.Logging.Output = "stderr"
	}

	logger := logging.New(cfg.Logging, version.Build)
	protocol, err := logging.NewProtocol(cfg.Logging, logger)
	if err != nil {
		return err
	}
	defer protocol.Close()

	d, err := newDaemon(cfg, logger, protocol)
	if err != nil {
		return err
	}

	if f.interactive {
		shell := interactive.New(interactive.Config{Host: d.host, Grants: d.grants})
		go func() {
			select {
			case <-d.ready:
			case <-ctx.Done():
				return
			}
			if err := shell.Run(ctx, cancel); err != nil {
				logger.Error("shell failed", "error", err)
				cancel()
			}
		}()
	}

	logger.Info("devhost starting", "name", cfg.Host.Name, "version", version.Build, "protocol", version.Current)
	return d.run(ctx)
}
