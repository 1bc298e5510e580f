package awscloud

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/schedulegen/stackwire-go/internal/cloud"
)

func (c *Cloud) CreateBucket(ctx context.Context, spec cloud.BucketSpec) (*cloud.BucketInfo, error) {
	input := &s3.CreateBucketInput{Bucket: aws.String(spec.Name)}
	// us-east-1 rejects an explicit location constraint
	if c.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.region),
		}
	}
	if _, err := c.Client.S3.CreateBucket(ctx, input); err != nil {
		return nil, fmt.Errorf("creating bucket %s: %w", spec.Name, mapError(err))
	}
	c.log.Debug().Str("bucket", spec.Name).Msg("bucket created")

	if err := c.configureBucket(ctx, spec); err != nil {
		return nil, c.discard(ctx, err, "bucket "+spec.Name, func(ctx context.Context) error {
			return c.DeleteBucket(ctx, spec.Name)
		})
	}
	return c.bucketInfo(spec.Name, spec.Versioned), nil
}

func (c *Cloud) configureBucket(ctx context.Context, spec cloud.BucketSpec) error {
	if spec.Versioned {
		if err := c.putVersioning(ctx, spec.Name, types.BucketVersioningStatusEnabled); err != nil {
			return err
		}
	}
	return c.putTags(ctx, spec)
}

// UpdateBucket enables versioning, or suspends it when Versioned is false.
func (c *Cloud) UpdateBucket(ctx context.Context, spec cloud.BucketSpec) (*cloud.BucketInfo, error) {
	status := types.BucketVersioningStatusSuspended
	if spec.Versioned {
		status = types.BucketVersioningStatusEnabled
	}
	if err := c.putVersioning(ctx, spec.Name, status); err != nil {
		return nil, err
	}
	if err := c.putTags(ctx, spec); err != nil {
		return nil, err
	}
	return c.bucketInfo(spec.Name, spec.Versioned), nil
}

func (c *Cloud) DeleteBucket(ctx context.Context, name string) error {
	if _, err := c.Client.S3.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)}); err != nil {
		return fmt.Errorf("deleting bucket %s: %w", name, mapError(err))
	}
	return nil
}

func (c *Cloud) PutObject(ctx context.Context, bucket, key string, body []byte) (string, error) {
	out, err := c.Client.S3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return "", fmt.Errorf("putting %s/%s: %w", bucket, key, mapError(err))
	}
	if out.VersionId == nil {
		return "null", nil
	}
	return *out.VersionId, nil
}

func (c *Cloud) GetObject(ctx context.Context, bucket, key, versionID string) ([]byte, error) {
	input := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if versionID != "" {
		input.VersionId = aws.String(versionID)
	}
	out, err := c.Client.S3.GetObject(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("getting %s/%s: %w", bucket, key, mapError(err))
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (c *Cloud) putVersioning(ctx context.Context, name string, status types.BucketVersioningStatus) error {
	_, err := c.Client.S3.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket:                  aws.String(name),
		VersioningConfiguration: &types.VersioningConfiguration{Status: status},
	})
	if err != nil {
		return fmt.Errorf("setting versioning on %s: %w", name, mapError(err))
	}
	return nil
}

func (c *Cloud) putTags(ctx context.Context, spec cloud.BucketSpec) error {
	if len(spec.Tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(spec.Tags))
	for k := range spec.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tagSet := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		tagSet = append(tagSet, types.Tag{Key: aws.String(k), Value: aws.String(spec.Tags[k])})
	}

	_, err := c.Client.S3.PutBucketTagging(ctx, &s3.PutBucketTaggingInput{
		Bucket:  aws.String(spec.Name),
		Tagging: &types.Tagging{TagSet: tagSet},
	})
	if err != nil {
		return fmt.Errorf("tagging bucket %s: %w", spec.Name, mapError(err))
	}
	return nil
}

func (c *Cloud) bucketInfo(name string, versioned bool) *cloud.BucketInfo {
	return &cloud.BucketInfo{Name: name, Arn: "arn:" + c.partition + ":s3:::" + name, Versioned: versioned}
}
