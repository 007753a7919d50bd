// Package loopback provides an in-process transport: every node of a test
// cluster registers its Service under its endpoint, clients dispatch through
// a shared registry on fresh goroutines.
package loopback

import (
	"fmt"

	"github.com/holtenko/iotdb/lib/consensus"
	"github.com/holtenko/iotdb/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// Cluster is the shared registry of one in-process cluster.
type Cluster struct {
	services *xsync.MapOf[string, transport.Service]
}

// NewCluster creates an empty registry.
func NewCluster() *Cluster {
	return &Cluster{services: xsync.NewMapOf[string, transport.Service]()}
}

// Register installs the service of one node under its endpoint.
func (c *Cluster) Register(endpoint string, service transport.Service) {
	c.services.Store(endpoint, service)
}

// Deregister removes a node, making it unreachable for the others.
func (c *Cluster) Deregister(endpoint string) {
	c.services.Delete(endpoint)
}

// Provider returns the client provider one node uses to reach its peers.
func (c *Cluster) Provider() transport.Provider {
	return &provider{cluster: c}
}

// --------------------------------------------------------------------------
// Client side
// --------------------------------------------------------------------------

type provider struct {
	cluster *Cluster
}

func (p *provider) ConnectNode(node *consensus.Node) consensus.Client {
	endpoint := node.Endpoint()
	if _, ok := p.cluster.services.Load(endpoint); !ok {
		return nil
	}
	return &client{cluster: p.cluster, endpoint: endpoint}
}

func (p *provider) Close() error {
	return nil
}

type client struct {
	cluster  *Cluster
	endpoint string
}

func (c *client) SendHeartbeat(req *consensus.HeartbeatRequest, handler func(*consensus.HeartbeatResponse, error)) {
	go func() {
		service, ok := c.cluster.services.Load(c.endpoint)
		if !ok {
			handler(nil, fmt.Errorf("loopback: %s is not registered", c.endpoint))
			return
		}
		handler(service.HandleHeartbeat(req), nil)
	}()
}

func (c *client) StartElection(req *consensus.ElectionRequest, handler func(*consensus.ElectionResponse, error)) {
	go func() {
		service, ok := c.cluster.services.Load(c.endpoint)
		if !ok {
			handler(nil, fmt.Errorf("loopback: %s is not registered", c.endpoint))
			return
		}
		handler(service.HandleElection(req), nil)
	}()
}
