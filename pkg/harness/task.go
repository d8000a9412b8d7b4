package harness

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/pkg/errors"

	"github.com/grafana/connburst/pkg/socket"
)

// Target is the endpoint every connection of a run is opened against.
type Target struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (t Target) String() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t Target) Validate() error {
	if t.Host == "" {
		return errors.New("target host is required")
	}
	if t.Port <= 0 || t.Port > 65535 {
		return fmt.Errorf("invalid target port %d", t.Port)
	}
	return nil
}

// Resolver looks up the IPv4 addresses of a host.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Resolve returns the first IPv4 address of the target host.
func (t Target) Resolve(ctx context.Context, r Resolver) (socket.Addr, error) {
	if ip := net.ParseIP(t.Host); ip != nil {
		return socket.AddrFrom(ip, t.Port)
	}
	if r == nil {
		r = net.DefaultResolver
	}
	ips, err := r.LookupIP(ctx, "ip4", t.Host)
	if err != nil {
		return socket.Addr{}, errors.Wrapf(err, "resolving %s", t.Host)
	}
	for _, ip := range ips {
		if addr, err := socket.AddrFrom(ip, t.Port); err == nil {
			return addr, nil
		}
	}
	return socket.Addr{}, fmt.Errorf("no IPv4 address found for %s", t.Host)
}

// Task is the immutable input of a single worker.
type Task struct {
	ID      int
	Target  Target
	Payload []byte
}

// NewTasks creates n tasks sharing the same target and payload.
func NewTasks(n int, target Target, payload []byte) []Task {
	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{ID: i, Target: target, Payload: payload}
	}
	return tasks
}
