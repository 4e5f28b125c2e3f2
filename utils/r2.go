// utils/r2.go
package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the slice of the S3 API the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ResultsArchive uploads frozen round results to R2 as JSON.
type ResultsArchive struct {
	Client     ObjectPutter
	Bucket     string
	CDNBaseURL string
}

// NewResultsArchive builds an R2-backed archive. It returns nil when R2 is not configured.
func NewResultsArchive(ctx context.Context, cfg R2Config) (*ResultsArchive, error) {
	if !cfg.Enabled() {
		log.Println("⚠️  R2 not configured, results archive disabled")
		return nil, nil
	}
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	cdnBaseURL := cfg.CDNBaseURL
	if cdnBaseURL == "" {
		cdnBaseURL = endpoint
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("auto"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})
	return &ResultsArchive{Client: client, Bucket: cfg.Bucket, CDNBaseURL: cdnBaseURL}, nil
}

// ResultsKey is the object key of a round's archived results.
func ResultsKey(roundID string) string {
	return "results/" + roundID + ".json"
}

// ArchiveResults writes snapshot to results/<roundID>.json. A nil archive is a no-op.
func (a *ResultsArchive) ArchiveResults(ctx context.Context, roundID string, snapshot interface{}) error {
	if a == nil || a.Client == nil {
		return nil
	}
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	key := ResultsKey(roundID)
	_, err = a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to R2: %w", err)
	}
	log.Printf("✅ Archived results of round %s to %s/%s", roundID, a.CDNBaseURL, key)
	return nil
}
