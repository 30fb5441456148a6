package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/shinji-kodama/stackctl/internal/lifecycle"
	"github.com/shinji-kodama/stackctl/internal/model"
)

// Router dispatches each service to its own probe, falling back to a
// default probe for services without one.
type Router struct {
	fallback  lifecycle.ReadinessProbe
	byService map[model.ServiceName]lifecycle.ReadinessProbe
}

// Select builds a Router from per-service HTTP URLs and TCP addresses. A
// service listed in both uses HTTP. The maps usually come from viper,
// which lowercases keys, so services are looked up case-insensitively
// when there is no exact match. fallback may be nil, in which case
// services without an explicit probe are reported ready immediately.
func Select(fallback lifecycle.ReadinessProbe, httpURLs, tcpAddrs map[string]string) *Router {
	r := &Router{
		fallback:  fallback,
		byService: make(map[model.ServiceName]lifecycle.ReadinessProbe),
	}
	for svc, addr := range tcpAddrs {
		r.byService[svc] = NewTCP(addr)
	}
	for svc, url := range httpURLs {
		r.byService[svc] = NewHTTP(url)
	}
	return r
}

// Ready asks the probe responsible for service.
func (r *Router) Ready(ctx context.Context, service model.ServiceName) (bool, error) {
	if p := r.lookup(service); p != nil {
		return p.Ready(ctx, service)
	}
	if r.fallback == nil {
		return true, nil
	}
	return r.fallback.Ready(ctx, service)
}

// Describe names the probe kind used for service, for status output.
func (r *Router) Describe(service model.ServiceName) string {
	switch p := r.lookup(service).(type) {
	case *HTTP:
		return "http " + p.URL
	case *TCP:
		return "tcp " + p.Addr
	}
	if r.fallback == nil {
		return "none"
	}
	if d, ok := r.fallback.(fmt.Stringer); ok {
		return d.String()
	}
	return fmt.Sprintf("%T", r.fallback)
}

// lookup returns the explicit probe for service, or nil. An exact match
// wins over a case-insensitive one.
func (r *Router) lookup(service model.ServiceName) lifecycle.ReadinessProbe {
	if p, ok := r.byService[service]; ok {
		return p
	}
	for svc, p := range r.byService {
		if strings.EqualFold(svc, service) {
			return p
		}
	}
	return nil
}
