package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrUnavailable marks transient backend failures worth retrying.
var ErrUnavailable = errors.New("firestore: backend unavailable")

// wrapError annotates Firestore errors with an operation and maps gRPC codes onto
// the domain sentinel for missing documents. Context cancellations pass through.
func wrapError(op string, err error, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status.Code(err) {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return context.DeadlineExceeded
	case codes.NotFound:
		if notFound != nil {
			return fmt.Errorf("%s: %w", op, notFound)
		}
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal:
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
