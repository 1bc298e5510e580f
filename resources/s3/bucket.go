// Package s3 declares versioned object storage buckets.
package s3

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"regexp"
	"strings"

	stackwire "github.com/schedulegen/stackwire-go"
	"github.com/schedulegen/stackwire-go/construct"
)

// bucketNamePattern follows the S3 general purpose bucket naming rules.
var bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

// BucketProps configures a Bucket.
type BucketProps struct {
	// BucketName is the physical name. It must be unique across the whole
	// provider namespace; collisions surface when the bucket is provisioned.
	// Changing it replaces the bucket. Empty means a name is derived from the
	// stack and construct id.
	BucketName string

	// Versioned keeps every revision of every object.
	Versioned bool

	// RemovalPolicy defaults to RemovalPolicyRetain.
	RemovalPolicy stackwire.RemovalPolicy
}

// Bucket is a declared storage resource. It depends on nothing.
type Bucket struct {
	stack *construct.Stack
	id    string
	props BucketProps
}

// NewBucket declares a bucket in stack.
func NewBucket(stack *construct.Stack, id string, props BucketProps) (*Bucket, error) {
	if stack == nil {
		return nil, fmt.Errorf("bucket %q: stack scope is required", id)
	}
	if props.BucketName != "" {
		if err := ValidateBucketName(props.BucketName); err != nil {
			return nil, fmt.Errorf("%s: %w", stack.Path(id), err)
		}
	}
	switch props.RemovalPolicy {
	case "":
		props.RemovalPolicy = stackwire.RemovalPolicyRetain
	case stackwire.RemovalPolicyRetain, stackwire.RemovalPolicyDestroy:
	default:
		return nil, fmt.Errorf("%s: unknown removal policy %q", stack.Path(id), props.RemovalPolicy)
	}

	b := &Bucket{stack: stack, id: id, props: props}
	if err := stack.Add(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ID implements stackwire.Resource.
func (b *Bucket) ID() string { return b.id }

// Kind implements stackwire.Resource.
func (b *Bucket) Kind() stackwire.Kind { return stackwire.KindStorage }

// ResourceType implements stackwire.Resource.
func (b *Bucket) ResourceType() string { return "AWS::S3::Bucket" }

// Dependencies implements stackwire.Resource.
func (b *Bucket) Dependencies() []string { return nil }

// Stack returns the owning stack.
func (b *Bucket) Stack() *construct.Stack { return b.stack }

// Props returns the declared props with defaults applied.
func (b *Bucket) Props() BucketProps { return b.props }

// BucketName returns the physical bucket name.
func (b *Bucket) BucketName() string {
	if b.props.BucketName != "" {
		return b.props.BucketName
	}
	return generatedName(b.stack.ID(), b.id)
}

// Arn returns a reference to the bucket ARN.
func (b *Bucket) Arn() stackwire.AttrRef {
	return stackwire.AttrRef{Resource: b.id, Attribute: "Arn"}
}

// ValidateBucketName checks the syntactic S3 naming rules. Global uniqueness
// can only be checked by the provider.
func ValidateBucketName(name string) error {
	if !bucketNamePattern.MatchString(name) {
		return fmt.Errorf("invalid bucket name %q: must be 3-63 lowercase letters, digits, dots or hyphens", name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("invalid bucket name %q: adjacent periods", name)
	}
	if net.ParseIP(name) != nil {
		return fmt.Errorf("invalid bucket name %q: formatted as an IP address", name)
	}
	return nil
}

// generatedName derives a stable lowercase name from the construct path.
func generatedName(stackID, id string) string {
	sum := md5.Sum([]byte(stackID + "/" + id))
	base := strings.ToLower(stackID + "-" + id)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, base)
	if len(base) > 54 {
		base = base[:54]
	}
	return base + "-" + hex.EncodeToString(sum[:])[:8]
}
