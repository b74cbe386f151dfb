package upload

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/ethpandaops/dumpoor/pkg/config"
	"github.com/sirupsen/logrus"
)

// s3Putter is the subset of *s3.Client used by the transport.
type s3Putter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// s3Transport stores dumps as objects in S3-compatible storage. The upload
// URL has the form s3://bucket/prefix.
type s3Transport struct {
	log    logrus.FieldLogger
	cfg    *config.S3UploadConfig
	client s3Putter
}

var _ Transport = (*s3Transport)(nil)

// NewS3Transport creates a new S3 transport from the given configuration.
func NewS3Transport(
	log logrus.FieldLogger,
	cfg *config.S3UploadConfig,
) Transport {
	return &s3Transport{
		log:    log.WithField("component", "s3-transport"),
		cfg:    cfg,
		client: newS3Client(cfg),
	}
}

func newS3Client(cfg *config.S3UploadConfig) *s3.Client {
	return s3.New(s3.Options{}, func(o *s3.Options) {
		if cfg.Region != "" {
			o.Region = cfg.Region
		} else {
			o.Region = "us-east-1"
		}

		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}

		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}

		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)
		}
	})
}

func (t *s3Transport) Name() string { return "s3" }

func (t *s3Transport) Schemes() []string { return []string{"s3"} }

// Send puts the dump under prefix/product/version/filename with the
// metadata fields attached as object metadata.
func (t *s3Transport) Send(ctx context.Context, p *Payload) (*Reply, error) {
	bucket := p.URL.Host
	key := resolveKey(p.URL.Path, p.Product, p.FileName)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          p.Body,
		ContentLength: aws.Int64(p.Size),
		ContentType:   aws.String(detectContentType(p.FileName)),
		Metadata:      objectMetadata(p),
	}

	if t.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(t.cfg.StorageClass)
	}

	t.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": bucket,
	}).Debug("Uploading dump")

	out, err := t.client.PutObject(ctx, input)
	if err != nil {
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) {
			return &Reply{Status: respErr.HTTPStatusCode()}, &TransferError{
				Code:   CodeRemoteRejected,
				Status: respErr.HTTPStatusCode(),
				Err:    fmt.Errorf("PutObject: %w", err),
			}
		}

		return nil, fmt.Errorf("PutObject: %w", err)
	}

	var answer []byte
	if out.ETag != nil {
		answer = []byte(*out.ETag)
	}

	return &Reply{Status: 200, Body: answer}, nil
}

// resolveKey builds the object key for a dump.
func resolveKey(urlPath string, product Product, fileName string) string {
	prefix := strings.Trim(urlPath, "/")
	if prefix == "" {
		prefix = config.DefaultS3Prefix
	}

	parts := []string{prefix}

	if product.Name != "" {
		parts = append(parts, product.Name)
	}

	if product.Version != "" {
		parts = append(parts, product.Version)
	}

	return strings.Join(append(parts, fileName), "/")
}

func objectMetadata(p *Payload) map[string]string {
	md := make(map[string]string, len(p.Fields)+2)
	md["product-name"] = p.Product.Name
	md["product-version"] = p.Product.Version

	for _, f := range p.Fields {
		md[strings.ToLower(f.Name)] = f.Value
	}

	return md
}

// detectContentType returns a MIME type based on file extension.
func detectContentType(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return "application/octet-stream"
	}

	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "application/octet-stream"
	}

	return ct
}
