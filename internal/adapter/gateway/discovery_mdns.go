//go:build mdns

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// MDNSSupported reports whether Advertise and Discover are functional.
const MDNSSupported = true

const (
	mdnsServiceType = "_gpimon._tcp"
	mdnsDomain      = "local."
	mdnsScanTimeout = 3 * time.Second
)

// Advertise registers the gateway on the local network. It blocks until
// ctx is cancelled. Call it in a goroutine.
func Advertise(ctx context.Context, instance string, port int, logger *slog.Logger) error {
	txt := []string{"path=/ws"}
	server, err := zeroconf.Register(instance, mdnsServiceType, mdnsDomain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	logger.Info("mdns advertising", "instance", instance, "port", port)
	<-ctx.Done()
	server.Shutdown()
	return nil
}

// Discover browses for gateways and returns their host:port addresses.
func Discover(ctx context.Context, logger *slog.Logger) ([]string, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		mu    sync.Mutex
		addrs []string
		wg    sync.WaitGroup
	)

	scanCtx, cancel := context.WithTimeout(ctx, mdnsScanTimeout)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			addr := entryAddr(entry)
			if addr == "" {
				continue
			}
			mu.Lock()
			addrs = append(addrs, addr)
			mu.Unlock()
			logger.Debug("mdns discovered gateway", "instance", entry.Instance, "addr", addr)
		}
	}()

	if err := resolver.Browse(scanCtx, mdnsServiceType, mdnsDomain, entries); err != nil {
		cancel()
		wg.Wait()
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-scanCtx.Done()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return append([]string(nil), addrs...), nil
}

func entryAddr(entry *zeroconf.ServiceEntry) string {
	switch {
	case len(entry.AddrIPv4) > 0:
		return fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port)
	case len(entry.AddrIPv6) > 0:
		return fmt.Sprintf("[%s]:%d", entry.AddrIPv6[0], entry.Port)
	}
	return ""
}
