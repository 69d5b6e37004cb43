package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/bantx/internal/common"
	"github.com/dmitrijs2005/bantx/internal/logging"
	sc "github.com/dmitrijs2005/bantx/internal/server/config"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/users"
	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const presignExpiry = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// DocumentService hands out presigned S3 URLs for the KYC identity document
// of a user. The object key is stored on the user's profile.
type DocumentService struct {
	store  *CredentialStore
	config *sc.Config
	log    logging.Logger
	now    func() time.Time
}

func NewDocumentService(repo users.Repository, config *sc.Config, l logging.Logger) *DocumentService {
	return &DocumentService{
		store:  NewCredentialStore(repo),
		config: config,
		log:    l,
		now:    time.Now,
	}
}

// DocumentKey returns a fresh object key kyc/{userID}/{yyyy}/{mm}/{uuid}.
func DocumentKey(userID string, t time.Time) string {
	return fmt.Sprintf("kyc/%s/%04d/%02d/%s", userID, t.Year(), int(t.Month()), uuid.NewString())
}

func (s *DocumentService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,
			s.config.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// UploadURL allocates a new document key for userID, records it on the
// profile and returns it with a presigned PUT URL.
func (s *DocumentService) UploadURL(ctx context.Context, userID string) (key, url string, err error) {
	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return "", "", err
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", "", internal(err)
	}

	bucket := s.config.S3Bucket
	key = DocumentKey(userID, s.now().UTC())

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", "", internal(err)
	}

	u.Profile.KYCDocumentKey = key
	if err := s.store.Save(ctx, u); err != nil {
		return "", "", err
	}

	s.log.Info(ctx, "kyc upload url issued", "user_id", userID, "key", key)
	return key, req.URL, nil
}

// DownloadURL returns a presigned GET URL for the stored document of userID,
// or common.ErrorNotFound when none was uploaded.
func (s *DocumentService) DownloadURL(ctx context.Context, userID string) (string, error) {
	u, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	key := u.Profile.KYCDocumentKey
	if key == "" {
		return "", common.ErrorNotFound
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", internal(err)
	}

	bucket := s.config.S3Bucket
	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", internal(err)
	}
	return req.URL, nil
}
