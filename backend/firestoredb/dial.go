package firestoredb

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/googleapis/gax-go/v2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"

	"github.com/jacentio/nestdoc/backend"
)

var retryableCodes = []codes.Code{
	codes.Unavailable,
	codes.ResourceExhausted,
	codes.Aborted,
}

// DefaultBackoff is the pause schedule between retried calls.
func DefaultBackoff() gax.Backoff {
	return gax.Backoff{
		Initial:    100 * time.Millisecond,
		Max:        5 * time.Second,
		Multiplier: 2,
	}
}

// RetryInterceptor retries unary calls failing with a transient status code
// at most maxRetries times.
func RetryInterceptor(maxRetries int, bo gax.Backoff) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		retryer := gax.OnCodes(retryableCodes, bo)
		for attempt := 0; ; attempt++ {
			err := invoker(ctx, method, req, reply, cc, opts...)
			if err == nil || attempt >= maxRetries {
				return err
			}
			pause, ok := retryer.Retry(err)
			if !ok {
				return err
			}
			if err := gax.Sleep(ctx, pause); err != nil {
				return err
			}
		}
	}
}

// ClientOptions builds the Firestore client options for cfg. The JSON
// credentials become an OAuth2 token source limited to cfg.Scopes.
func ClientOptions(ctx context.Context, cfg backend.Config) ([]option.ClientOption, error) {
	creds, err := google.CredentialsFromJSON(ctx, []byte(cfg.Credentials), cfg.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	opts := []option.ClientOption{
		option.WithCredentials(creds),
		option.WithGRPCDialOption(grpc.WithChainUnaryInterceptor(
			RetryInterceptor(cfg.MaxRetries, DefaultBackoff()),
		)),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	return opts, nil
}

// Dial opens a Firestore client for cfg.ProjectID.
func Dial(ctx context.Context, cfg backend.Config) (backend.Backend, error) {
	opts, err := ClientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	return New(client), nil
}
