package probe

import (
	"context"
	"net"
	"time"

	"github.com/shinji-kodama/stackctl/internal/model"
)

// defaultDialTimeout bounds a single TCP connection attempt.
const defaultDialTimeout = 2 * time.Second

// TCP checks readiness by opening a TCP connection to Addr. The connection
// is closed immediately; only acceptance matters.
type TCP struct {
	Addr   string
	dialer net.Dialer
}

// NewTCP creates a TCP probe for a host:port address.
func NewTCP(addr string) *TCP {
	return &TCP{Addr: addr, dialer: net.Dialer{Timeout: defaultDialTimeout}}
}

// Ready dials Addr. A refused or timed out connection is returned as an
// error and counts as not ready.
func (p *TCP) Ready(ctx context.Context, _ model.ServiceName) (bool, error) {
	conn, err := p.dialer.DialContext(ctx, "tcp", p.Addr)
	if err != nil {
		return false, err
	}
	_ = conn.Close()
	return true, nil
}
