package netstack

import (
	"fmt"
	"io"
	"net"

	"gopkg.in/yaml.v3"
)

// Config holds the tunable parameters of a TCPConnection: the byte-stream
// capacity of each direction and the starting retransmission timeout. The
// ISN is not part of Config; a Stack takes it from the isnFunc passed to New.
type Config struct {
	StreamCapacity   uint64 `yaml:"streamCapacity"`
	InitialRTOMillis uint64 `yaml:"initialRTOMillis"`
}

// DefaultConfig returns the connection tuning used when a host program
// doesn't override it.
func DefaultConfig() Config {
	return Config{
		StreamCapacity:   DefaultStreamCapacity,
		InitialRTOMillis: DefaultInitialRTOMillis,
	}
}

// RouteSpec is the YAML representation of one RouteEntry, addressed by
// dotted-quad CIDR instead of raw integers for readability.
type RouteSpec struct {
	Prefix    string `yaml:"prefix"`    // e.g. "10.0.0.0/8", or "0.0.0.0/0" for default
	NextHop   string `yaml:"nextHop"`   // empty means directly attached
	Interface int    `yaml:"interface"` // index into the router's interface list
}

// RouterConfig is a declarative routing table, typically loaded once at
// startup by the host program (the core itself never reads files).
type RouterConfig struct {
	Routes []RouteSpec `yaml:"routes"`
}

// LoadRouterConfig parses a YAML routing table.
func LoadRouterConfig(r io.Reader) (RouterConfig, error) {
	var cfg RouterConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return RouterConfig{}, fmt.Errorf("netstack: decode router config: %w", err)
	}
	return cfg, nil
}

// Apply installs every route in the config into r, resolving each
// human-readable prefix/next-hop into the numeric form RouteEntry expects.
func (rc RouterConfig) Apply(r *Router) error {
	for i, spec := range rc.Routes {
		prefix, prefixLen, err := parseCIDR(spec.Prefix)
		if err != nil {
			return fmt.Errorf("netstack: route %d: %w", i, err)
		}
		var nextHop IPv4Addr
		hasNextHop := spec.NextHop != ""
		if hasNextHop {
			ip, err := parseIPv4(spec.NextHop)
			if err != nil {
				return fmt.Errorf("netstack: route %d next hop: %w", i, err)
			}
			nextHop = ip
		}
		r.AddRoute(prefix, prefixLen, nextHop, hasNextHop, spec.Interface)
	}
	return nil
}

func parseCIDR(s string) (uint32, uint8, error) {
	_, network, err := net.ParseCIDR(s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid CIDR %q: %w", s, err)
	}
	ones, _ := network.Mask.Size()
	ip := network.IP.To4()
	if ip == nil {
		return 0, 0, fmt.Errorf("invalid CIDR %q: not IPv4", s)
	}
	var addr IPv4Addr
	copy(addr[:], ip)
	return addr.Uint32(), uint8(ones), nil
}

func parseIPv4(s string) (IPv4Addr, error) {
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return IPv4Addr{}, fmt.Errorf("invalid IPv4 address %q", s)
	}
	var addr IPv4Addr
	copy(addr[:], ip)
	return addr, nil
}
