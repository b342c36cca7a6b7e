// Package notify holds the outbound notification provider clients. Each
// client makes exactly one delivery attempt per call; retry policy belongs to
// the worker pool that invokes it.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ladlehq/ladle/internal/domain/model"
)

// Message is one delivery to one recipient.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a single message through one provider.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// drainSuccess discards a successful response body so the connection can be
// reused.
func drainSuccess(resp *http.Response) error {
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		closeErr := resp.Body.Close()
		if closeErr != nil {
			return errors.Join(
				fmt.Errorf("drain response body: %w", err),
				fmt.Errorf("close response body: %w", closeErr),
			)
		}
		return fmt.Errorf("drain response body: %w", err)
	}
	if err := resp.Body.Close(); err != nil {
		return fmt.Errorf("close response body: %w", err)
	}
	return nil
}

// providerError converts a non-2xx provider response into an error. Client
// errors are permanent: the same request cannot succeed on retry.
func providerError(provider string, resp *http.Response) error {
	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	closeErr := resp.Body.Close()

	err := fmt.Errorf("%s %s: %s", provider, resp.Status, strings.TrimSpace(string(respBody)))
	if readErr != nil {
		err = fmt.Errorf("%s %s (read body: %v)", provider, resp.Status, readErr)
	}
	if closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close response body: %w", closeErr))
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return model.Permanent(err)
	}
	return err
}
