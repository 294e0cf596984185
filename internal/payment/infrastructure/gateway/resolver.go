package gateway

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"
)

const lookupTimeout = 2 * time.Second

// Resolver resolves the fixed gateway host allowlist to its current
// address set. Gateway infrastructure rotates IPs, so resolution happens
// per request rather than being cached; a host that fails to resolve
// contributes no addresses instead of failing the check.
type Resolver struct {
	log      *slog.Logger
	hosts    []string
	resolver *net.Resolver
}

func NewResolver(log *slog.Logger, hosts []string) *Resolver {
	return &Resolver{log: log, hosts: hosts, resolver: net.DefaultResolver}
}

func (r *Resolver) TrustedIPs(ctx context.Context) []net.IP {
	var mu sync.Mutex
	var ips []net.IP

	var wg sync.WaitGroup
	for _, host := range r.hosts {
		wg.Add(1)
		go func(host string) {
			defer wg.Done()
			lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
			defer cancel()

			addrs, err := r.resolver.LookupIPAddr(lookupCtx, host)
			if err != nil {
				r.log.Warn("gateway host lookup failed", "host", host, "err", err)
				return
			}
			mu.Lock()
			for _, a := range addrs {
				ips = append(ips, a.IP)
			}
			mu.Unlock()
		}(host)
	}
	wg.Wait()
	return ips
}
