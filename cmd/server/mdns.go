package main

import (
	"context"
	"log/slog"

	"github.com/grandcat/zeroconf"
	"github.com/pkg/errors"
	"github.com/wlynxg/anet"
)

const (
	davService = "_webdav._tcp"
	davDomain  = "local."
)

// announce publishes the WebDAV endpoint on the local network until ctx is done.
func announce(ctx context.Context, instance string, port int, realm string) error {
	ifaces, err := anet.Interfaces()
	if err != nil {
		return errors.Wrap(err, "could not list network interfaces")
	}

	txt := []string{"path=/", "dav=1,2"}
	if realm != "" {
		txt = append(txt, "realm="+realm)
	}

	server, err := zeroconf.Register(instance, davService, davDomain, port, txt, ifaces)
	if err != nil {
		return errors.Wrapf(err, "could not register service '%s'", instance)
	}

	slog.InfoContext(ctx, "announcing service", slog.String("service", davService), slog.String("instance", instance), slog.Int("port", port))

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	return nil
}
