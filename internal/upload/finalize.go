package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/offerbuddy/offerbuddy/internal/image"
)

// Finalization errors
var (
	ErrObjectNotFound = errors.New("object not found in storage")
	ErrInvalidKey     = errors.New("invalid object key")
	ErrNotAnImage     = errors.New("uploaded object is not a valid image")
)

// ObjectAPI is the subset of the S3 client used for reading back and
// rewriting uploaded objects.
type ObjectAPI interface {
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ImageInfo describes a finalized product photo.
type ImageInfo struct {
	Key       string `json:"key"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"size_bytes"`
}

// FinalizeImage verifies an object a vendor just uploaded through a signed
// URL. The client declared a MIME type when signing but could have uploaded
// anything, so the object is read back and decoded. Valid images are
// sanitized (EXIF stripped, oversized photos downscaled) and rewritten in
// place; the returned dimensions are those of the original upload.
func (s *Service) FinalizeImage(ctx context.Context, key string) (*ImageInfo, error) {
	if !strings.HasPrefix(key, "products/") {
		return nil, ErrInvalidKey
	}

	getOutput, err := s.objects.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrObjectNotFound, err)
	}
	defer getOutput.Body.Close()

	data, err := io.ReadAll(io.LimitReader(getOutput.Body, s.maxSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	if int64(len(data)) > s.maxSizeBytes {
		return nil, ErrFileTooLarge
	}

	meta, err := image.Inspect(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}

	sanitized, err := image.Sanitize(data, image.DefaultOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}

	contentType := "image/" + meta.Format
	if _, err := s.objects.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sanitized),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(sanitized))),
	}); err != nil {
		return nil, fmt.Errorf("failed to rewrite sanitized image: %w", err)
	}

	return &ImageInfo{
		Key:       key,
		Width:     meta.Width,
		Height:    meta.Height,
		Format:    meta.Format,
		SizeBytes: int64(len(sanitized)),
	}, nil
}
