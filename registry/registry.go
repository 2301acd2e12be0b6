// Package registry resolves a service name to the HTTP endpoints serving it.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

var ErrNoInstances = errors.New("registry: no instances available")

type ServiceInstance struct {
	Addr    string
	Weight  int // Weight for load balancing
	Version string
	Scheme  string `json:",omitempty"` // "http" when empty
}

// URL returns the base URL of the instance. Addr may already carry a scheme.
func (s ServiceInstance) URL() string {
	if strings.Contains(s.Addr, "://") {
		return strings.TrimRight(s.Addr, "/")
	}
	scheme := s.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, strings.TrimRight(s.Addr, "/"))
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	// Watch emits the full instance list after every change. The channel is
	// closed once ctx is done.
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}

// StaticRegistry is an in-memory Registry for fixed deployments and tests.
// TTLs are ignored.
type StaticRegistry struct {
	mu       sync.RWMutex
	services map[string][]ServiceInstance
	watchers map[string][]chan []ServiceInstance
}

func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		services: make(map[string][]ServiceInstance),
		watchers: make(map[string][]chan []ServiceInstance),
	}
}

func (r *StaticRegistry) Register(_ context.Context, serviceName string, instance ServiceInstance, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.services[serviceName]
	for i := range list {
		if list[i].Addr == instance.Addr {
			list[i] = instance
			r.notifyLocked(serviceName)
			return nil
		}
	}
	r.services[serviceName] = append(list, instance)
	r.notifyLocked(serviceName)
	return nil
}

func (r *StaticRegistry) Deregister(_ context.Context, serviceName string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.services[serviceName]
	for i := range list {
		if list[i].Addr == addr {
			r.services[serviceName] = append(list[:i:i], list[i+1:]...)
			r.notifyLocked(serviceName)
			return nil
		}
	}
	return nil
}

func (r *StaticRegistry) Discover(_ context.Context, serviceName string) ([]ServiceInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ServiceInstance(nil), r.services[serviceName]...), nil
}

func (r *StaticRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	r.mu.Lock()
	r.watchers[serviceName] = append(r.watchers[serviceName], ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		ws := r.watchers[serviceName]
		for i, w := range ws {
			if w == ch {
				r.watchers[serviceName] = append(ws[:i:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// notifyLocked hands every watcher the latest list, replacing one it has
// not consumed yet.
func (r *StaticRegistry) notifyLocked(serviceName string) {
	snapshot := append([]ServiceInstance(nil), r.services[serviceName]...)
	for _, ch := range r.watchers[serviceName] {
		sendLatest(ch, snapshot)
	}
}

func sendLatest(ch chan []ServiceInstance, instances []ServiceInstance) {
	for {
		select {
		case ch <- instances:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
