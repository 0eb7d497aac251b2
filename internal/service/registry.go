// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tombee/lumipilot/pkg/errors"
)

// Registry maps service names to services.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
}

// NewRegistry creates an empty service registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]Service)}
}

// Register adds a service. Names must be unique.
func (r *Registry) Register(svc Service) error {
	if svc == nil {
		return fmt.Errorf("cannot register nil service")
	}
	name := svc.Name()
	if name == "" {
		return fmt.Errorf("service name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[name]; exists {
		return fmt.Errorf("service already registered: %s", name)
	}
	r.services[name] = svc
	return nil
}

// Get retrieves a service by name.
func (r *Registry) Get(name string) (Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	svc, ok := r.services[name]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "service", ID: name}
	}
	return svc, nil
}

// List returns all registered service names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthCheckAll checks every service concurrently.
func (r *Registry) HealthCheckAll(ctx context.Context) map[string]HealthStatus {
	r.mu.RLock()
	services := make([]Service, 0, len(r.services))
	for _, svc := range r.services {
		services = append(services, svc)
	}
	r.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]HealthStatus, len(services))
	)
	for _, svc := range services {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status := safeHealthCheck(ctx, svc)
			mu.Lock()
			results[svc.Name()] = status
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func safeHealthCheck(ctx context.Context, svc Service) (status HealthStatus) {
	defer func() {
		if r := recover(); r != nil {
			status = HealthStatus{ServiceName: svc.Name(), Error: fmt.Sprintf("health check panicked: %v", r)}
		}
	}()
	return svc.HealthCheck(ctx)
}
