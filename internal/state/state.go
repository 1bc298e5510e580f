// Package state records what a deployment provisioned, so later plans can be
// compared against it and destroys know which physical resources to remove.
package state

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	stackwire "github.com/schedulegen/stackwire-go"
)

// ErrNotFound is returned when no record exists for a stack.
var ErrNotFound = errors.New("stack state not found")

// Status of a recorded stack.
type Status string

const (
	StatusDeployed Status = "DEPLOYED"
	// StatusRetained marks a destroyed stack whose retained resources still exist.
	StatusRetained Status = "RETAINED"
)

// ResourceRecord is one provisioned resource.
type ResourceRecord struct {
	ID         string         `json:"id"`
	Kind       stackwire.Kind `json:"kind"`
	Type       string         `json:"type"`
	PhysicalID string         `json:"physical_id"`
	// Properties are the desired properties the resource was provisioned with.
	Properties map[string]any    `json:"properties,omitempty"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	Retain     bool              `json:"retain,omitempty"`
}

// StackRecord is the last successful deployment of a stack.
type StackRecord struct {
	ID        string                    `json:"id"`
	Name      string                    `json:"name"`
	Backend   string                    `json:"backend"`
	Status    Status                    `json:"status"`
	Template  []byte                    `json:"template,omitempty"`
	Resources map[string]ResourceRecord `json:"resources"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

// NewRecord starts a record for a stack that has never been deployed.
func NewRecord(name, backend string) *StackRecord {
	now := time.Now().UTC()
	return &StackRecord{
		ID:        uuid.NewString(),
		Name:      name,
		Backend:   backend,
		Status:    StatusDeployed,
		Resources: make(map[string]ResourceRecord),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ResourceIDs returns the recorded resource ids, sorted.
func (r *StackRecord) ResourceIDs() []string {
	ids := make([]string, 0, len(r.Resources))
	for id := range r.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Outputs flattens every resource output into "<resource>.<name>" keys.
func (r *StackRecord) Outputs() map[string]string {
	out := make(map[string]string)
	for id, res := range r.Resources {
		for k, v := range res.Outputs {
			out[id+"."+k] = v
		}
	}
	return out
}

// Store persists stack records. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, name string) (*StackRecord, error)
	Save(ctx context.Context, record *StackRecord) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]*StackRecord, error)
	Close() error
}
