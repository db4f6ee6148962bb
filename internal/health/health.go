package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Checker probes whether a deployed service answers on its node. Probes are
// opaque collaborators: possibly slow, possibly flaky, retried by the caller.
type Checker interface {
	Check(ctx context.Context, serviceName, node string) error
}

// Probe checks one service endpoint on a node.
type Probe func(ctx context.Context, client *http.Client, node string) error

// Registry resolves probes by service name. Services without a registered
// probe report ErrNoProbe, which callers treat as "health unknown" rather
// than unhealthy.
type Registry struct {
	client *http.Client
	probes map[string]Probe
}

// ErrNoProbe means no health probe is registered for a service.
var ErrNoProbe = fmt.Errorf("no health probe registered")

// NewRegistry creates a registry with the built-in probes.
func NewRegistry(timeout time.Duration) *Registry {
	r := &Registry{
		client: &http.Client{Timeout: timeout},
		probes: make(map[string]Probe),
	}
	r.Register("ollama", httpProbe(11434, "/api/tags"))
	r.Register("chroma", httpProbe(8000, "/api/v1/heartbeat"))
	r.Register("postgresql", tcpProbe(5432))
	return r
}

// Register adds or replaces the probe for a service name.
func (r *Registry) Register(serviceName string, p Probe) {
	r.probes[serviceName] = p
}

// Check runs the probe for serviceName against node.
func (r *Registry) Check(ctx context.Context, serviceName, node string) error {
	probe, ok := r.probes[serviceName]
	if !ok {
		return fmt.Errorf("%w for service %q", ErrNoProbe, serviceName)
	}
	return probe(ctx, r.client, node)
}

func httpProbe(port int, path string) Probe {
	return func(ctx context.Context, client *http.Client, node string) error {
		url := fmt.Sprintf("http://%s:%d%s", node, port, path)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("health probe %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			return fmt.Errorf("health probe %s: status %d", url, resp.StatusCode)
		}
		return nil
	}
}

func tcpProbe(port int) Probe {
	return func(ctx context.Context, client *http.Client, node string) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", node, port))
		if err != nil {
			return fmt.Errorf("health probe %s:%d: %w", node, port, err)
		}
		return conn.Close()
	}
}
