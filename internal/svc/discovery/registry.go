// If you are AI: This file implements the service table of the discovery
// coordinator. It is a flat slice of records keyed by (svc, id), with
// ownership expressed as an edge handle rather than a back-pointer, so
// removing an edge is a filter over the slice and no cycles exist.

package discovery

import (
	"errors"
	"time"

	"pnrelay/internal/core/lineproto"
)

// ErrServiceCapacity is returned when a new (svc, id) key would exceed the
// table cap. Existing keys may always be updated.
var ErrServiceCapacity = errors.New("service table full")

// Service is one registry record. IP is always the owning edge's observed
// remote address, never anything the edge claimed.
type Service struct {
	ID           string
	Svc          string
	IP           string
	CtrlPort     int
	DataPort     int
	Caps         string
	Owner        uint64 // Edge session handle
	RegisteredAt time.Time
}

// Registry is the in-memory service table. Nothing is persisted; the table
// dies with the process.
// Lock expectations: owned by the coordinator goroutine.
type Registry struct {
	services []Service
	max      int
}

// NewRegistry creates a table capped at max services.
func NewRegistry(max int) *Registry {
	return &Registry{max: max}
}

// Upsert registers or refreshes the service (req.Svc, req.ID) for the edge
// with the given handle and observed address. A repeat HELO for an existing
// key updates ports, caps and timestamp in place and keeps the original
// owner and address.
func (r *Registry) Upsert(owner uint64, ip string, req lineproto.Request, now time.Time) (created bool, err error) {
	for i := range r.services {
		if r.services[i].ID == req.ID && r.services[i].Svc == req.Svc {
			r.services[i].CtrlPort = req.Port
			r.services[i].DataPort = req.Data
			r.services[i].Caps = req.Caps
			r.services[i].RegisteredAt = now
			return false, nil
		}
	}

	if len(r.services) >= r.max {
		return false, ErrServiceCapacity
	}

	if len(ip) > lineproto.MaxIPLen {
		ip = ip[:lineproto.MaxIPLen]
	}
	r.services = append(r.services, Service{
		ID:           req.ID,
		Svc:          req.Svc,
		IP:           ip,
		CtrlPort:     req.Port,
		DataPort:     req.Data,
		Caps:         req.Caps,
		Owner:        owner,
		RegisteredAt: now,
	})
	return true, nil
}

// Remove drops services owned by the given edge matching id, and svc when
// svc is non-empty. Returns the number removed.
func (r *Registry) Remove(owner uint64, id, svc string) int {
	return r.filter(func(s Service) bool {
		return s.Owner == owner && s.ID == id && (svc == "" || s.Svc == svc)
	})
}

// RemoveOwner drops every service owned by the given edge. Returns the
// number removed.
func (r *Registry) RemoveOwner(owner uint64) int {
	return r.filter(func(s Service) bool { return s.Owner == owner })
}

func (r *Registry) filter(drop func(Service) bool) int {
	kept := r.services[:0]
	removed := 0
	for _, s := range r.services {
		if drop(s) {
			removed++
			continue
		}
		kept = append(kept, s)
	}
	r.services = kept
	return removed
}

// List renders the table, filtered to one service type when filterSvc is
// non-empty, in registration order.
func (r *Registry) List(filterSvc string) []lineproto.ServiceInfo {
	out := make([]lineproto.ServiceInfo, 0, len(r.services))
	for _, s := range r.services {
		if filterSvc != "" && s.Svc != filterSvc {
			continue
		}
		out = append(out, lineproto.ServiceInfo{
			ID:   s.ID,
			Svc:  s.Svc,
			IP:   s.IP,
			Port: s.CtrlPort,
			Data: s.DataPort,
			Caps: s.Caps,
		})
	}
	return out
}

// OwnerCount returns how many services the given edge owns.
func (r *Registry) OwnerCount(owner uint64) int {
	n := 0
	for _, s := range r.services {
		if s.Owner == owner {
			n++
		}
	}
	return n
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	return len(r.services)
}
