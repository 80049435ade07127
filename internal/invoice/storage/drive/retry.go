package drive

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/api/googleapi"
)

// RetryingClient retries calls of the wrapped client with bounded exponential
// backoff. Client errors other than rate limiting are not retried.
//
// Only calls that are safe to repeat are retried blindly. CreateFolder is
// passed through since a failed response may follow a committed create;
// FolderResolver retries the whole lookup-then-create instead. Upload is
// retried only when rate limited, the one failure that guarantees nothing
// was stored.
type RetryingClient struct {
	inner    Client
	attempts int
	initial  time.Duration
}

func NewRetryingClient(inner Client, attempts int, initial time.Duration) *RetryingClient {
	if attempts < 1 {
		attempts = 1
	}
	return &RetryingClient{inner: inner, attempts: attempts, initial: initial}
}

func (c *RetryingClient) policy(ctx context.Context) backoff.BackOff {
	return newPolicy(ctx, c.attempts, c.initial)
}

func newPolicy(ctx context.Context, attempts int, initial time.Duration) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if initial > 0 {
		eb.InitialInterval = initial
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

func classify(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

// onlyRateLimited marks every error except 429 as permanent.
func onlyRateLimited(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
		return err
	}
	return backoff.Permanent(err)
}

func retry[T any](ctx context.Context, c *RetryingClient, fn func() (T, error)) (T, error) {
	return retryWith(c.policy(ctx), classify, fn)
}

func retryWith[T any](policy backoff.BackOff, decide func(error) error, fn func() (T, error)) (T, error) {
	return backoff.RetryWithData(func() (T, error) {
		v, err := fn()
		if err != nil {
			return v, decide(err)
		}
		return v, nil
	}, policy)
}

func (c *RetryingClient) FindFolder(ctx context.Context, parentID, name string) (string, bool, error) {
	type result struct {
		id    string
		found bool
	}
	r, err := retry(ctx, c, func() (result, error) {
		id, found, err := c.inner.FindFolder(ctx, parentID, name)
		return result{id: id, found: found}, err
	})
	return r.id, r.found, err
}

func (c *RetryingClient) CreateFolder(ctx context.Context, parentID, name string) (string, error) {
	return c.inner.CreateFolder(ctx, parentID, name)
}

func (c *RetryingClient) Upload(ctx context.Context, parentID, name, contentType string, data []byte) (File, error) {
	return retryWith(c.policy(ctx), onlyRateLimited, func() (File, error) {
		return c.inner.Upload(ctx, parentID, name, contentType, data)
	})
}

func (c *RetryingClient) GrantPublicRead(ctx context.Context, fileID string) error {
	_, err := retry(ctx, c, func() (struct{}, error) {
		return struct{}{}, c.inner.GrantPublicRead(ctx, fileID)
	})
	return err
}
