package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"

	"kanflow/domain"
)

// mapTableError translates Azure responses into domain errors.
func mapTableError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, domain.ErrTimeout)
	}
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		case http.StatusForbidden, http.StatusUnauthorized:
			return fmt.Errorf("%s: %w", op, domain.ErrPermissionDenied)
		case http.StatusConflict, http.StatusPreconditionFailed:
			return fmt.Errorf("%s: %w", op, domain.ErrConcurrencyConflict)
		case http.StatusServiceUnavailable:
			return fmt.Errorf("%s: %w", op, domain.ErrUnavailable)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isPreconditionFailed(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == http.StatusPreconditionFailed
}
