package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	sc "github.com/guinardelli/sheet-guardian-sub000/internal/server/config"
)

// objectPutter is the slice of the S3 client used for uploads.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// objectPresigner is the slice of the S3 presign client used for downloads.
type objectPresigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// ArtifactService stores processed workbooks in S3-compatible object
// storage and hands out short-lived presigned download URLs. The caller
// never receives artifact bytes directly from storage paths.
type ArtifactService struct {
	config *sc.Config

	// newClients is a seam for tests.
	newClients func(ctx context.Context) (objectPutter, objectPresigner, error)
}

// NewArtifactService constructs the service from S3 settings in cfg.
func NewArtifactService(cfg *sc.Config) *ArtifactService {
	s := &ArtifactService{config: cfg}
	s.newClients = s.buildClients
	return s
}

func (s *ArtifactService) buildClients(ctx context.Context) (objectPutter, objectPresigner, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s.config.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return client, s3.NewPresignClient(client), nil
}

// ArtifactKey derives the object-storage key for a processed workbook:
// per-user, date-partitioned, with a fresh uuid so repeated runs on the
// same input never collide.
func ArtifactKey(userID, artifactName string) string {
	d := time.Now()
	return fmt.Sprintf("artifacts/%s/%d/%02d/%02d/%v/%s", userID, d.Year(), int(d.Month()), d.Day(), uuid.New(), artifactName)
}

// Upload stores the artifact bytes under key.
func (s *ArtifactService) Upload(ctx context.Context, key string, data []byte) error {
	client, _, err := s.newClients(ctx)
	if err != nil {
		return fmt.Errorf("error building s3 client: %w", err)
	}

	bucket := s.config.S3Bucket
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("error uploading artifact: %w", err)
	}
	return nil
}

// PresignDownload returns a presigned GET URL for the stored artifact.
func (s *ArtifactService) PresignDownload(ctx context.Context, key string) (string, error) {
	_, presigner, err := s.newClients(ctx)
	if err != nil {
		return "", fmt.Errorf("error building s3 client: %w", err)
	}

	bucket := s.config.S3Bucket
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", fmt.Errorf("error presigning download: %w", err)
	}

	return req.URL, nil
}
