package checker

import (
	"fmt"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultHost is used when a port target does not name a host.
const DefaultHost = "localhost"

// Kind selects which prober handles a descriptor.
type Kind string

const (
	KindPort Kind = "port"
	KindHTTP Kind = "http"
)

// Descriptor describes one service to check. Target is "host:port" (or a
// bare port number) for KindPort and an absolute URL for KindHTTP.
// A zero Timeout means the caller's per-check timeout applies.
type Descriptor struct {
	Name    string
	Kind    Kind
	Target  string
	Timeout time.Duration
}

// PortService returns a descriptor for a TCP port check.
func PortService(name, host string, port int) Descriptor {
	if host == "" {
		host = DefaultHost
	}
	return Descriptor{
		Name:   name,
		Kind:   KindPort,
		Target: net.JoinHostPort(host, strconv.Itoa(port)),
	}
}

// HTTPService returns a descriptor for an HTTP endpoint check.
func HTTPService(name, rawURL string) Descriptor {
	return Descriptor{Name: name, Kind: KindHTTP, Target: rawURL}
}

// ValidationError reports a descriptor whose shape does not match its kind.
type ValidationError struct {
	Service string
	Field   string
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Service == "" {
		return fmt.Sprintf("invalid service: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid service %q: %s: %s", e.Service, e.Field, e.Reason)
}

func (d Descriptor) invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Service: d.Name, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks that the target shape matches the kind.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return d.invalid("name", "name is required")
	}
	if d.Timeout < 0 {
		return d.invalid("timeout", "must not be negative, got %s", d.Timeout)
	}
	switch d.Kind {
	case KindPort:
		_, _, err := d.Address()
		return err
	case KindHTTP:
		_, err := d.URL()
		return err
	default:
		return d.invalid("kind", "unknown kind %q (must be port or http)", d.Kind)
	}
}

// Address parses a port target into host and port.
func (d Descriptor) Address() (string, int, error) {
	if d.Kind != KindPort {
		return "", 0, d.invalid("kind", "%q is not a port service", d.Kind)
	}
	target := strings.TrimSpace(d.Target)
	if target == "" {
		return "", 0, d.invalid("target", "port target is required")
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		if strings.Contains(target, ":") {
			return "", 0, d.invalid("target", "%q is not host:port", target)
		}
		host, portStr = DefaultHost, target
	}
	if host == "" {
		host = DefaultHost
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, d.invalid("target", "port %q is not a number", portStr)
	}
	if port < 1 || port > 65535 {
		return "", 0, d.invalid("target", "port %d out of range 1-65535", port)
	}
	return host, port, nil
}

// URL parses an http target.
func (d Descriptor) URL() (*url.URL, error) {
	if d.Kind != KindHTTP {
		return nil, d.invalid("kind", "%q is not an http service", d.Kind)
	}
	target := strings.TrimSpace(d.Target)
	if target == "" {
		return nil, d.invalid("target", "url is required")
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil, d.invalid("target", "parsing url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, d.invalid("target", "url %q must use http or https", target)
	}
	if u.Host == "" {
		return nil, d.invalid("target", "url %q has no host", target)
	}
	return u, nil
}

// ServiceSpec is the loose shape services take in config files, tool
// arguments and API bodies. Timeout is in seconds.
type ServiceSpec struct {
	Name    string  `yaml:"name" json:"name,omitempty" jsonschema:"display name of the service"`
	Type    string  `yaml:"type" json:"type,omitempty" jsonschema:"check type: port or http (default port)"`
	Host    string  `yaml:"host,omitempty" json:"host,omitempty" jsonschema:"host for port checks (default localhost)"`
	Port    int     `yaml:"port,omitempty" json:"port,omitempty" jsonschema:"port number for port checks (1-65535)"`
	URL     string  `yaml:"url,omitempty" json:"url,omitempty" jsonschema:"URL for http checks"`
	Target  string  `yaml:"target,omitempty" json:"target,omitempty" jsonschema:"host:port or URL, used when port/url are not set"`
	Timeout float64 `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"timeout in seconds for this service"`
}

// Per-service timeout bounds in seconds. Zero selects the caller's default.
const (
	MinServiceTimeout = 0.1
	MaxServiceTimeout = 30.0
)

// CheckTimeout rejects a timeout outside MinServiceTimeout..MaxServiceTimeout.
func (s ServiceSpec) CheckTimeout() error {
	t := s.Timeout
	if t == 0 {
		return nil
	}
	if math.IsNaN(t) || math.IsInf(t, 0) || t < MinServiceTimeout || t > MaxServiceTimeout {
		return &ValidationError{
			Service: s.Name,
			Field:   "timeout",
			Reason:  fmt.Sprintf("must be between %g and %g seconds, got %g", MinServiceTimeout, MaxServiceTimeout, t),
		}
	}
	return nil
}

// Descriptor converts the spec. It does not validate; call CheckTimeout
// on the spec and Validate on the result.
func (s ServiceSpec) Descriptor() Descriptor {
	kind := Kind(strings.ToLower(strings.TrimSpace(s.Type)))
	if kind == "" || kind == "tcp" {
		kind = KindPort
	}

	d := Descriptor{
		Name:    strings.TrimSpace(s.Name),
		Kind:    kind,
		Timeout: time.Duration(s.Timeout * float64(time.Second)),
	}

	switch kind {
	case KindPort:
		if s.Port != 0 {
			host := s.Host
			if host == "" {
				host = DefaultHost
			}
			d.Target = net.JoinHostPort(host, strconv.Itoa(s.Port))
			if d.Name == "" {
				d.Name = fmt.Sprintf("Port %d", s.Port)
			}
		} else {
			d.Target = s.Target
		}
	default:
		d.Target = s.URL
		if d.Target == "" {
			d.Target = s.Target
		}
	}

	if d.Name == "" {
		d.Name = d.Target
	}
	return d
}

// SpecFor is the inverse of ServiceSpec.Descriptor for valid descriptors.
func SpecFor(d Descriptor) ServiceSpec {
	s := ServiceSpec{
		Name:    d.Name,
		Type:    string(d.Kind),
		Timeout: d.Timeout.Seconds(),
	}
	switch d.Kind {
	case KindPort:
		host, port, err := d.Address()
		if err != nil {
			s.Target = d.Target
			break
		}
		if host != DefaultHost {
			s.Host = host
		}
		s.Port = port
	case KindHTTP:
		s.URL = d.Target
	default:
		s.Target = d.Target
	}
	return s
}
