package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/devhost-project/devhost-go/internal/config"
	"github.com/devhost-project/devhost-go/pkg/coordinator"
	"github.com/devhost-project/devhost-go/pkg/devhost"
	"github.com/devhost-project/devhost-go/pkg/discovery"
	"github.com/devhost-project/devhost-go/pkg/drivers"
	"github.com/devhost-project/devhost-go/pkg/log"
	"github.com/devhost-project/devhost-go/pkg/resource"
	"github.com/devhost-project/devhost-go/pkg/rpc"
)

// daemon wires the device host to its surfaces.
type daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	protocol log.Logger

	host       *devhost.Host
	link       *coordinator.Link
	server     *rpc.Server
	advertiser discovery.Advertiser
	grants     *resource.Root

	// ready is closed once the RPC listener accepts connections.
	ready chan struct{}
}

func newDaemon(cfg *config.Config, logger *slog.Logger, protocol log.Logger) (*daemon, error) {
	d := &daemon{
		cfg:      cfg,
		logger:   logger,
		protocol: protocol,
		ready:    make(chan struct{}),
	}
	hostID := cfg.Host.ID
	if hostID == "" {
		hostID = uuid.New().String()
		logger.Info("no host id configured, using a random one", "hostID", hostID)
	}

	policy, err := devhost.ParseRemovePolicy(cfg.Host.RemovePolicy)
	if err != nil {
		return nil, err
	}

	reg := devhost.NewRegistry()
	if err := drivers.Register(reg); err != nil {
		return nil, err
	}

	var coord devhost.Coordinator = coordinator.Nop{}
	if tr := d.coordinatorTransport(hostID); tr != nil {
		d.link, err = coordinator.NewLink(coordinator.Config{
			HostID:         hostID,
			Name:           cfg.Host.Name,
			Transport:      tr,
			Backoff:        cfg.Coordinator.Backoff,
			MaxPending:     cfg.Coordinator.MaxPending,
			Logger:         logger.With("component", "coordinator"),
			ProtocolLogger: protocol,
		})
		if err != nil {
			return nil, err
		}
		coord = d.link
	}

	switch secret, err := cfg.ResourceSecret(); {
	case errors.Is(err, config.ErrNoSecret):
		logger.Info("no resource secret configured, grants disabled")
	case err != nil:
		return nil, err
	default:
		d.grants, err = resource.Bootstrap(func() ([]byte, error) { return secret, nil })
		if err != nil {
			return nil, err
		}
	}

	var firmware devhost.FirmwareLoader
	if cfg.Host.FirmwareDir != "" {
		firmware = devhost.NewDirFirmware(cfg.Host.FirmwareDir)
	}

	d.host = devhost.NewHost(devhost.HostConfig{
		ID:             hostID,
		Name:           cfg.Host.Name,
		Registry:       reg,
		Coordinator:    coord,
		Firmware:       firmware,
		RootResource:   d.grants,
		RemovePolicy:   policy,
		MaxDevices:     cfg.Host.MaxDevices,
		LockDebug:      cfg.Host.LockDebug,
		Logger:         logger.With("component", "host"),
		ProtocolLogger: protocol,
	})
	if d.link != nil {
		d.link.SetHandler(d.host)
	}

	d.server, err = rpc.NewServer(rpc.ServerConfig{
		Host:           d.host,
		Network:        cfg.RPC.Network,
		Address:        cfg.RPC.Address,
		MaxMessageSize: cfg.RPC.MaxMessageSize,
		MaxHandles:     cfg.RPC.MaxHandles,
		Logger:         logger.With("component", "rpc"),
		ProtocolLogger: protocol,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Discovery.Enabled {
		d.advertiser, err = discovery.NewMDNSAdvertiser(cfg.Discovery.Advertiser)
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *daemon) coordinatorTransport(hostID string) coordinator.Transport {
	c := d.cfg.Coordinator
	switch c.Kind {
	case config.CoordinatorStream:
		return &coordinator.StreamTransport{
			Network: c.Network,
			Address: c.Address,
			Logger:  d.protocol,
		}
	case config.CoordinatorMQTT:
		return coordinator.NewMQTTTransport(c.MQTT, hostID)
	default:
		return nil
	}
}

// run builds the tree, serves until ctx ends and then shuts everything
// down: listener first, so open handles drop their references, then the
// tree.
func (d *daemon) run(ctx context.Context) error {
	root, err := drivers.Bootstrap(ctx, d.host)
	if err != nil {
		return err
	}
	d.logger.Info("device tree ready", "hostID", d.host.ID(), "root", root.Name(), "devices", d.host.Len())

	g, gctx := errgroup.WithContext(ctx)

	if err := d.server.Start(gctx); err != nil {
		return err
	}
	d.logger.Info("rpc listening", "network", d.cfg.RPC.Network, "address", d.server.Addr())
	close(d.ready)

	if d.link != nil {
		g.Go(func() error { return d.link.Run(gctx) })
	}

	if d.advertiser != nil {
		info := &discovery.HostInfo{
			HostID:   d.host.ID(),
			Name:     d.cfg.Host.Name,
			RootName: root.Name(),
			Network:  d.cfg.RPC.Network,
			Port:     d.advertisedPort(),
		}
		if err := d.advertiser.Advertise(gctx, info); err != nil {
			d.logger.Warn("mDNS advertisement failed", "error", err)
		} else {
			d.logger.Info("advertising", "instance", info.InstanceName(), "port", info.Port)
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		return d.shutdown()
	})

	return g.Wait()
}

func (d *daemon) advertisedPort() uint16 {
	if tcp, ok := d.server.Addr().(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	return d.cfg.Discovery.Port
}

func (d *daemon) shutdown() error {
	var errs []error
	if d.advertiser != nil {
		errs = append(errs, d.advertiser.Stop())
	}
	errs = append(errs, d.server.Stop())

	timeout := d.cfg.Host.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := d.host.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("host shutdown: %w", err))
	}

	if d.link != nil {
		errs = append(errs, d.link.Close())
	}
	d.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
