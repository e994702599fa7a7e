package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

const uploadURLExpiry = 15 * time.Minute

type Options struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// FilePresigner hands out short-lived upload URLs for message attachments.
type FilePresigner struct {
	client *s3.PresignClient
	bucket string
}

func NewFilePresigner(ctx context.Context, opts Options) (*FilePresigner, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(opts.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")),
	)
	if err != nil {
		return nil, err
	}

	s3Client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return &FilePresigner{
		client: s3.NewPresignClient(s3Client),
		bucket: opts.Bucket,
	}, nil
}

// PresignUpload returns a PUT URL for objectKey valid for 15 minutes.
func (p *FilePresigner) PresignUpload(ctx context.Context, objectKey string) (string, error) {
	request, err := p.client.PresignPutObject(ctx,
		&s3.PutObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(objectKey),
		},
		func(o *s3.PresignOptions) {
			o.Expires = uploadURLExpiry
		},
	)
	if err != nil {
		return "", err
	}

	return request.URL, nil
}

// AttachmentKey builds a collision free object key under the owner's prefix,
// keeping only the base name and extension of the client supplied file name.
func AttachmentKey(ownerID uuid.UUID, fileName string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" || base == "" {
		base = "file"
	}
	return fmt.Sprintf("attachments/%s/%s-%s", ownerID, uuid.NewString(), base)
}
