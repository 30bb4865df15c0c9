// Package mainconfig turns the app config into an AWS SDK config for the
// queue, job table, handoff archive, SES and Bedrock clients.
package mainconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	appconfig "github.com/wolfman30/travel-enquiry-bot/internal/config"
)

const (
	appID = "travel-enquiry-bot"
	// Webhook turns are latency sensitive; fail over to the fallback
	// reply rather than stacking SDK retries.
	maxAttempts = 3
)

// LoadAWSConfig resolves region, credentials and endpoint. Static keys are
// used only when both halves are set; otherwise the default chain applies.
// AWS_ENDPOINT_OVERRIDE points every client at LocalStack.
func LoadAWSConfig(ctx context.Context, cfg *appconfig.Config) (aws.Config, error) {
	region := strings.TrimSpace(cfg.AWSRegion)
	if region == "" {
		return aws.Config{}, errors.New("mainconfig: AWS_REGION is required")
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
		config.WithAppID(appID),
		config.WithRetryMaxAttempts(maxAttempts),
	}
	key, secret := strings.TrimSpace(cfg.AWSAccessKeyID), strings.TrimSpace(cfg.AWSSecretAccessKey)
	if key != "" && secret != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(key, secret, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("mainconfig: load AWS config: %w", err)
	}
	if endpoint := strings.TrimSpace(cfg.AWSEndpointOverride); endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(endpoint)
	}
	return awsCfg, nil
}
