package aws

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/smithy-go"
	"golang.org/x/time/rate"
)

// RateLimitedClient wraps a CloudFormation client with client-side rate
// limiting and error classification. CloudFormation throttles around 10
// requests per second; 5 rps with a burst of 10 stays well under that even
// with several tailing sessions sharing the client.
type RateLimitedClient struct {
	client  CloudFormationAPI
	limiter *rate.Limiter
	region  string
}

// NewRateLimitedClient wraps client with a shared limiter.
func NewRateLimitedClient(client CloudFormationAPI, region string) *RateLimitedClient {
	return &RateLimitedClient{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		region:  region,
	}
}

func (r *RateLimitedClient) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return &Error{
			Type:    ErrorTypeRateLimit,
			Message: "rate limit wait cancelled",
			Cause:   err,
		}
	}
	return nil
}

func (r *RateLimitedClient) ListStacks(ctx context.Context, params *cloudformation.ListStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ListStacksOutput, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	out, err := r.client.ListStacks(ctx, params, optFns...)
	return out, r.classify(err)
}

func (r *RateLimitedClient) DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	out, err := r.client.DescribeStacks(ctx, params, optFns...)
	return out, r.classify(err)
}

func (r *RateLimitedClient) DescribeStackEvents(ctx context.Context, params *cloudformation.DescribeStackEventsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	out, err := r.client.DescribeStackEvents(ctx, params, optFns...)
	return out, r.classify(err)
}

func (r *RateLimitedClient) CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	out, err := r.client.CreateStack(ctx, params, optFns...)
	return out, r.classify(err)
}

func (r *RateLimitedClient) UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	out, err := r.client.UpdateStack(ctx, params, optFns...)
	return out, r.classify(err)
}

// classify maps transport-level failures onto the error taxonomy. Backend
// validation errors pass through untouched so callers can still inspect
// the structured code and message.
func (r *RateLimitedClient) classify(err error) error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return err
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "RequestLimitExceeded", "TooManyRequestsException":
			return &Error{
				Type:    ErrorTypeRateLimit,
				Message: "cloudformation API rate limit exceeded",
				Cause:   err,
			}
		case "InvalidParameterValue":
			if strings.Contains(apiErr.ErrorMessage(), "region") {
				return &Error{
					Type:    ErrorTypeConfiguration,
					Message: "invalid region: " + r.region,
					Cause:   err,
				}
			}
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{
			Type:    ErrorTypeNetwork,
			Message: "request timeout or cancelled",
			Cause:   err,
		}
	}

	msg := err.Error()
	if strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") {
		return &Error{
			Type:    ErrorTypeNetwork,
			Message: "network connectivity issue",
			Cause:   err,
		}
	}

	return err
}

// RetryableClient adds exponential backoff on transient failures. Retry
// lives here, in the transport layer, so the tailing loop above it never
// retries a failed poll itself.
type RetryableClient struct {
	client     *RateLimitedClient
	maxRetries int
}

// NewRetryableClient wraps client with rate limiting and up to maxRetries
// backoff retries of rate-limit and network failures.
func NewRetryableClient(client CloudFormationAPI, region string, maxRetries int) *RetryableClient {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &RetryableClient{
		client:     NewRateLimitedClient(client, region),
		maxRetries: maxRetries,
	}
}

func (r *RetryableClient) ListStacks(ctx context.Context, params *cloudformation.ListStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ListStacksOutput, error) {
	return withRetry(r.maxRetries, func() (*cloudformation.ListStacksOutput, error) {
		return r.client.ListStacks(ctx, params, optFns...)
	})
}

func (r *RetryableClient) DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error) {
	return withRetry(r.maxRetries, func() (*cloudformation.DescribeStacksOutput, error) {
		return r.client.DescribeStacks(ctx, params, optFns...)
	})
}

func (r *RetryableClient) DescribeStackEvents(ctx context.Context, params *cloudformation.DescribeStackEventsInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStackEventsOutput, error) {
	return withRetry(r.maxRetries, func() (*cloudformation.DescribeStackEventsOutput, error) {
		return r.client.DescribeStackEvents(ctx, params, optFns...)
	})
}

// CreateStack and UpdateStack are not retried: re-sending a write after an
// ambiguous failure could start a second operation.
func (r *RetryableClient) CreateStack(ctx context.Context, params *cloudformation.CreateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateStackOutput, error) {
	return r.client.CreateStack(ctx, params, optFns...)
}

func (r *RetryableClient) UpdateStack(ctx context.Context, params *cloudformation.UpdateStackInput, optFns ...func(*cloudformation.Options)) (*cloudformation.UpdateStackOutput, error) {
	return r.client.UpdateStack(ctx, params, optFns...)
}

// withRetry runs op with exponential backoff while it fails with a
// retryable transport error.
func withRetry[T any](maxRetries int, op func() (T, error)) (T, error) {
	var out T
	var err error
	for attempt := 0; ; attempt++ {
		out, err = op()
		if err == nil || !isRetryable(err) || attempt == maxRetries {
			return out, err
		}
		time.Sleep(time.Duration(1<<uint(attempt)) * time.Second)
	}
}

func isRetryable(err error) bool {
	var typed *Error
	if !errors.As(err, &typed) {
		return false
	}
	switch typed.Type {
	case ErrorTypeRateLimit, ErrorTypeNetwork:
		return true
	default:
		return false
	}
}
