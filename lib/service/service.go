// Package service defines the minimal lifecycle contract the long-running
// components of a node share, and a registry that starts and stops them in
// order.
package service

import "fmt"

// Service is a component with an explicit lifecycle. Start returns once the
// component is running; Stop blocks until it has shut down.
type Service interface {
	Start() error
	Stop()
}

// Registry starts services in registration order and stops them in reverse.
type Registry struct {
	names    []string
	services []Service
	started  int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a named service. Registration order is start order.
func (r *Registry) Register(name string, s Service) {
	r.names = append(r.names, name)
	r.services = append(r.services, s)
}

// StartAll starts every registered service. On the first failure the already
// started services are stopped again and the error returned names the
// failing service.
func (r *Registry) StartAll() error {
	for i, s := range r.services {
		if err := s.Start(); err != nil {
			r.StopAll()
			return fmt.Errorf("service %s failed to start: %w", r.names[i], err)
		}
		r.started = i + 1
	}
	return nil
}

// StopAll stops the started services in reverse order.
func (r *Registry) StopAll() {
	for i := r.started - 1; i >= 0; i-- {
		r.services[i].Stop()
	}
	r.started = 0
}
