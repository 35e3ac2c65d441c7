package dynamo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/jacentio/nestdoc/backend"
)

// Credentials is the JSON credential document accepted by Dial.
// An empty AccessKeyID falls back to the default AWS credential chain.
type Credentials struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token,omitempty"`
	Region          string `json:"region,omitempty"`
}

// ParseCredentials decodes raw credential material.
func ParseCredentials(raw string) (Credentials, error) {
	var creds Credentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse credentials: %w", err)
	}
	return creds, nil
}

// LoadOptions translates cfg into AWS config load options.
func LoadOptions(cfg backend.Config, creds Credentials) []func(*config.LoadOptions) error {
	opts := []func(*config.LoadOptions) error{
		config.WithRetryMaxAttempts(cfg.MaxRetries + 1),
	}
	if creds.Region != "" {
		opts = append(opts, config.WithRegion(creds.Region))
	}
	if creds.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		))
	}
	return opts
}

// Dial opens a Backend on the table named by cfg.ProjectID with the
// DefaultConfig key layout.
func Dial(ctx context.Context, cfg backend.Config) (backend.Backend, error) {
	return Dialer(Config{})(ctx, cfg)
}

// Dialer returns a backend.Dialer opening Backends laid out by c.
// An empty c.Table falls back to cfg.ProjectID.
func Dialer(c Config) backend.Dialer {
	return func(ctx context.Context, cfg backend.Config) (backend.Backend, error) {
		if c.Table == "" {
			c.Table = cfg.ProjectID
		}
		if c.Table == "" {
			return nil, fmt.Errorf("dynamo: table name is empty")
		}

		creds, err := ParseCredentials(cfg.Credentials)
		if err != nil {
			return nil, err
		}

		awsCfg, err := config.LoadDefaultConfig(ctx, LoadOptions(cfg, creds)...)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}

		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
			}
		})

		return New(client, c), nil
	}
}
