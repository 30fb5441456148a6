package port

import (
	"net"
	"strconv"

	"github.com/shinji-kodama/stackctl/internal/model"
)

// Scanner checks whether specific ports are available on the host machine.
//
// It binds the port with the OS network stack rather than parsing
// /proc/net/* or calling lsof, which may need elevated permissions.
type Scanner struct{}

// NewScanner creates a new Scanner instance.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Conflicts returns the published ports that are already bound on the
// host, in input order. Call it after the project's own containers are
// stopped, otherwise their ports show up as conflicts.
//
// An empty HostIP means all interfaces, which is where Docker publishes
// by default. A port with an unknown protocol is reported as a conflict.
func (s *Scanner) Conflicts(ports []model.PublishedPort) []model.PublishedPort {
	var taken []model.PublishedPort
	for _, p := range ports {
		if !s.isFree(p.HostIP, p.Port, p.Protocol) {
			taken = append(taken, p)
		}
	}
	return taken
}

// isFree tries to bind host:port and releases it immediately.
func (s *Scanner) isFree(host string, port int, protocol string) bool {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	switch protocol {
	case "tcp":
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = listener.Close() }()
		return true

	case "udp":
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return false
		}
		defer func() { _ = conn.Close() }()
		return true

	default:
		return false
	}
}
