// Package memory is an in-process simulated cloud account.
//
// Bucket names are unique across a Namespace shared by every account created
// from it, the way object storage names are global across a real provider.
// Functions keep their zipped artifact and resolve their entrypoint inside it
// only when invoked. Gateways are HTTP handlers that proxy every request to
// their function.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/schedulegen/stackwire-go/internal/cloud"
)

// Namespace is the global bucket name registry shared by accounts.
type Namespace struct {
	mu     sync.Mutex
	owners map[string]string
}

// NewNamespace creates an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{owners: make(map[string]string)}
}

func (n *Namespace) claim(name, account string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, taken := n.owners[name]; taken {
		return fmt.Errorf("bucket %s: %w", name, cloud.ErrBucketAlreadyExists)
	}
	n.owners[name] = account
	return nil
}

func (n *Namespace) release(name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.owners, name)
}

// Option configures an Account.
type Option func(*Account)

// WithRegion sets the account region. Defaults to us-east-1.
func WithRegion(region string) Option {
	return func(a *Account) { a.region = region }
}

// WithAccountID sets the account id. Defaults to 123456789012.
func WithAccountID(id string) Option {
	return func(a *Account) { a.accountID = id }
}

// Account is a simulated cloud account. It is safe for concurrent use.
type Account struct {
	ns        *Namespace
	region    string
	accountID string

	mu        sync.RWMutex
	buckets   map[string]*bucket
	functions map[string]*function
	gateways  map[string]*gateway
	handlers  map[string]Handler
	seq       int
}

// NewAccount creates an account in ns. A nil ns gets a private namespace.
func NewAccount(ns *Namespace, opts ...Option) *Account {
	if ns == nil {
		ns = NewNamespace()
	}
	a := &Account{
		ns:        ns,
		region:    "us-east-1",
		accountID: "123456789012",
		buckets:   make(map[string]*bucket),
		functions: make(map[string]*function),
		gateways:  make(map[string]*gateway),
		handlers:  make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Provider exposes the account as a cloud.Provider.
func (a *Account) Provider() cloud.Provider {
	return cloud.Provider{Name: "memory", Buckets: a, Functions: a, Gateways: a}
}

// Region returns the account region.
func (a *Account) Region() string { return a.region }

// AccountID returns the account id.
func (a *Account) AccountID() string { return a.accountID }

type objectVersion struct {
	id   string
	data []byte
}

type bucket struct {
	name       string
	versioning string // "", "Enabled" or "Suspended"
	objects    map[string][]objectVersion
	tags       map[string]string
}

func (b *bucket) info() *cloud.BucketInfo {
	return &cloud.BucketInfo{
		Name:      b.name,
		Arn:       "arn:aws:s3:::" + b.name,
		Versioned: b.versioning == "Enabled",
	}
}

// CreateBucket implements cloud.Buckets.
func (a *Account) CreateBucket(ctx context.Context, spec cloud.BucketSpec) (*cloud.BucketInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := a.ns.claim(spec.Name, a.accountID); err != nil {
		return nil, err
	}

	b := &bucket{name: spec.Name, objects: make(map[string][]objectVersion), tags: spec.Tags}
	if spec.Versioned {
		b.versioning = "Enabled"
	}

	a.mu.Lock()
	a.buckets[spec.Name] = b
	a.mu.Unlock()
	return b.info(), nil
}

// UpdateBucket implements cloud.Buckets.
func (a *Account) UpdateBucket(ctx context.Context, spec cloud.BucketSpec) (*cloud.BucketInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buckets[spec.Name]
	if !ok {
		return nil, fmt.Errorf("bucket %s: %w", spec.Name, cloud.ErrNotFound)
	}
	switch {
	case spec.Versioned:
		b.versioning = "Enabled"
	case b.versioning != "":
		b.versioning = "Suspended"
	}
	b.tags = spec.Tags
	return b.info(), nil
}

// DeleteBucket implements cloud.Buckets.
func (a *Account) DeleteBucket(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buckets[name]
	if !ok {
		return fmt.Errorf("bucket %s: %w", name, cloud.ErrNotFound)
	}
	if len(b.objects) > 0 {
		return fmt.Errorf("bucket %s: %w", name, cloud.ErrBucketNotEmpty)
	}
	delete(a.buckets, name)
	a.ns.release(name)
	return nil
}

// PutObject implements cloud.Buckets.
func (a *Account) PutObject(ctx context.Context, bucketName, key string, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buckets[bucketName]
	if !ok {
		return "", fmt.Errorf("bucket %s: %w", bucketName, cloud.ErrNotFound)
	}

	data := append([]byte(nil), body...)
	if b.versioning != "Enabled" {
		// unversioned and suspended buckets overwrite the null version
		versions := b.objects[key]
		kept := versions[:0]
		for _, v := range versions {
			if v.id != "null" {
				kept = append(kept, v)
			}
		}
		b.objects[key] = append(kept, objectVersion{id: "null", data: data})
		return "null", nil
	}

	id := uuid.NewString()
	b.objects[key] = append(b.objects[key], objectVersion{id: id, data: data})
	return id, nil
}

// GetObject implements cloud.Buckets.
func (a *Account) GetObject(ctx context.Context, bucketName, key, versionID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()

	b, ok := a.buckets[bucketName]
	if !ok {
		return nil, fmt.Errorf("bucket %s: %w", bucketName, cloud.ErrNotFound)
	}
	versions := b.objects[key]
	if len(versions) == 0 {
		return nil, fmt.Errorf("object %s/%s: %w", bucketName, key, cloud.ErrNotFound)
	}
	if versionID == "" {
		return append([]byte(nil), versions[len(versions)-1].data...), nil
	}
	for _, v := range versions {
		if v.id == versionID {
			return append([]byte(nil), v.data...), nil
		}
	}
	return nil, fmt.Errorf("object %s/%s version %s: %w", bucketName, key, versionID, cloud.ErrNotFound)
}

// ObjectVersions lists the version ids of key, oldest first.
func (a *Account) ObjectVersions(bucketName, key string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	b, ok := a.buckets[bucketName]
	if !ok {
		return nil
	}
	var ids []string
	for _, v := range b.objects[key] {
		ids = append(ids, v.id)
	}
	return ids
}

// DeleteObjects removes every version of every object in a bucket.
func (a *Account) DeleteObjects(bucketName string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buckets[bucketName]
	if !ok {
		return fmt.Errorf("bucket %s: %w", bucketName, cloud.ErrNotFound)
	}
	b.objects = make(map[string][]objectVersion)
	return nil
}

// Bucket reports whether the account owns a bucket.
func (a *Account) Bucket(name string) (*cloud.BucketInfo, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	b, ok := a.buckets[name]
	if !ok {
		return nil, false
	}
	return b.info(), true
}

func (a *Account) nextID(prefix string) string {
	a.seq++
	return fmt.Sprintf("%s%08x", prefix, a.seq)
}
