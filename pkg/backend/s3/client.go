package s3

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client is the subset of the S3 API used by the backend. *s3.Client
// satisfies it.
type Client interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var _ Client = (*s3.Client)(nil)

// endpointURL builds the base endpoint from host, port and scheme, or ""
// when no custom endpoint is configured. A scheme on Endpoint is dropped;
// UseSSL decides it.
func (c Config) endpointURL() string {
	host := strings.TrimSuffix(c.Endpoint, "/")
	for _, prefix := range []string{"https://", "http://"} {
		if len(host) >= len(prefix) && strings.EqualFold(host[:len(prefix)], prefix) {
			host = host[len(prefix):]
			break
		}
	}
	if host == "" {
		return ""
	}
	scheme := "http"
	if c.UseSSL {
		scheme = "https"
	}
	if c.Port > 0 {
		host = net.JoinHostPort(host, strconv.Itoa(c.Port))
	}
	return scheme + "://" + host
}

// NewClients builds the S3 clients for cfg.
//
// The data client handles object reads and writes. The control client
// handles bucket checks and listings. They are the same client unless
// cfg.Accelerate is set, in which case the data client talks to the
// accelerated endpoint and the control client keeps the custom endpoint.
func NewClients(ctx context.Context, cfg Config) (data, control *s3.Client, err error) {
	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	region := cfg.Region
	if region == "" {
		region = DefaultRegion
	}

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(region),
	}

	// Static credentials when provided, default credential chain otherwise
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Clients
	// ========================================================================

	endpoint := cfg.endpointURL()
	control = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	if !cfg.Accelerate {
		return control, control, nil
	}

	// Transfer acceleration is incompatible with custom endpoints and
	// path-style addressing.
	data = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UseAccelerate = true
		o.UsePathStyle = false
	})
	return data, control, nil
}
