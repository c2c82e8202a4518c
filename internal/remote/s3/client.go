// Package s3 implements remote.Storage over an S3 bucket. Folders are the
// "/"-delimited common prefixes below Config.Prefix.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/openmined/savesync/internal/remote"
)

const (
	delimiter             = "/"
	metaClientModified    = "client-modified"
	defaultRegion         = "us-east-1"
	directoryMarkerSuffix = "/"
)

type Client struct {
	s3Client *s3.Client
	bucket   string
	prefix   string
}

var _ remote.Storage = (*Client)(nil)

func New(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing SDK client.
func NewWithClient(client *s3.Client, cfg *Config) *Client {
	return &Client{
		s3Client: client,
		bucket:   cfg.Bucket,
		prefix:   normalizePrefix(cfg.Prefix),
	}
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/")
	if prefix == "" {
		return ""
	}
	return prefix + delimiter
}

// objectKey maps a canonical remote path to its object key.
func (c *Client) objectKey(p string) string {
	return c.prefix + strings.TrimPrefix(remote.Clean(p), "/")
}

// folderPrefix maps a canonical folder path to the listing prefix.
func (c *Client) folderPrefix(folder string) string {
	key := c.objectKey(folder)
	if key == "" || strings.HasSuffix(key, delimiter) {
		return key
	}
	return key + delimiter
}

// remotePath maps an object key back to a canonical remote path.
func (c *Client) remotePath(key string) string {
	return remote.Clean(strings.TrimPrefix(key, c.prefix))
}

func (c *Client) CurrentAccount(ctx context.Context) (*remote.Account, error) {
	_, err := c.s3Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &c.bucket})
	if err != nil {
		return nil, c.wrap("head bucket", c.bucket, err)
	}
	return &remote.Account{
		ID:          c.bucket,
		DisplayName: "s3://" + c.bucket + "/" + c.prefix,
	}, nil
}

func (c *Client) ListFolder(ctx context.Context, folder string) ([]remote.Entry, error) {
	prefix := c.folderPrefix(folder)
	paginator := s3.NewListObjectsV2Paginator(c.s3Client, &s3.ListObjectsV2Input{
		Bucket:    &c.bucket,
		Prefix:    aws.String(prefix),
		Delimiter: aws.String(delimiter),
	})

	var folders, files []remote.Entry
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, c.wrap("list objects", prefix, err)
		}

		for _, cp := range page.CommonPrefixes {
			p := c.remotePath(strings.TrimSuffix(aws.ToString(cp.Prefix), delimiter))
			folders = append(folders, remote.Entry{
				Name: path.Base(p),
				Path: p,
				Kind: remote.KindFolder,
			})
		}

		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == prefix || strings.HasSuffix(key, directoryMarkerSuffix) {
				continue
			}
			p := c.remotePath(key)
			files = append(files, remote.Entry{
				Name:           path.Base(p),
				Path:           p,
				Kind:           remote.KindFile,
				Size:           aws.ToInt64(obj.Size),
				Rev:            trimETag(aws.ToString(obj.ETag)),
				ServerModified: aws.ToTime(obj.LastModified).UTC(),
			})
		}
	}

	return append(folders, files...), nil
}

func (c *Client) GetMetadata(ctx context.Context, p string) (*remote.Entry, error) {
	key := c.objectKey(p)
	resp, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, c.wrap("head object", key, err)
	}
	return c.entry(key, aws.ToInt64(resp.ContentLength), resp.VersionId, resp.ETag, resp.LastModified), nil
}

// Upload puts the whole object, replacing any previous version. S3 does not
// return LastModified on PUT, so the object is read back with HEAD.
func (c *Client) Upload(ctx context.Context, p string, data []byte, opts remote.UploadOptions) (*remote.Entry, error) {
	key := c.objectKey(p)
	input := &s3.PutObjectInput{
		Bucket:        &c.bucket,
		Key:           &key,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if !opts.ClientModified.IsZero() {
		input.Metadata = map[string]string{
			metaClientModified: opts.ClientModified.UTC().Format(time.RFC3339),
		}
	}

	if _, err := c.s3Client.PutObject(ctx, input); err != nil {
		return nil, c.wrap("put object", key, err)
	}

	return c.GetMetadata(ctx, p)
}

func (c *Client) Download(ctx context.Context, p string) ([]byte, *remote.Entry, error) {
	key := c.objectKey(p)
	resp, err := c.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, nil, c.wrap("get object", key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("s3: read object %s: %w", key, err)
	}

	return data, c.entry(key, int64(len(data)), resp.VersionId, resp.ETag, resp.LastModified), nil
}

func (c *Client) Close() error {
	return nil
}

func (c *Client) entry(key string, size int64, versionID, etag *string, lastModified *time.Time) *remote.Entry {
	rev := aws.ToString(versionID)
	if rev == "" {
		rev = trimETag(aws.ToString(etag))
	}
	p := c.remotePath(key)
	return &remote.Entry{
		Name:           path.Base(p),
		Path:           p,
		Kind:           remote.KindFile,
		Size:           size,
		Rev:            rev,
		ServerModified: aws.ToTime(lastModified).UTC(),
	}
}

func trimETag(etag string) string {
	return strings.ReplaceAll(etag, "\"", "")
}

// wrap attaches the operation and key to err and maps S3 error codes onto the
// shared remote sentinels.
func (c *Client) wrap(op, key string, err error) error {
	if sentinel := classify(err); sentinel != nil {
		return fmt.Errorf("s3: %s %s/%s: %w: %w", op, c.bucket, key, sentinel, err)
	}
	return fmt.Errorf("s3: %s %s/%s: %w", op, c.bucket, key, err)
}

func classify(err error) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return remote.ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return remote.ErrNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return remote.ErrUnauthorized
		}
	}
	return nil
}
