package firestore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Abdullah97825/Matjary-sub000/internal/repositories"
)

// WrapError translates Firestore RPC failures into repositories.Error values. Context cancellations,
// errors that already carry repository semantics, and errors raised by transaction callbacks are
// returned unchanged.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}

	st, ok := status.FromError(err)
	if !ok {
		if errors.Is(err, ErrProviderClosed) {
			return repositories.NewError(op, repositories.ErrorUnavailable, err.Error(), err)
		}
		return err
	}

	switch st.Code() {
	case codes.Canceled:
		return context.Canceled
	case codes.DeadlineExceeded:
		return repositories.NewError(op, repositories.ErrorUnavailable, st.Message(), err)
	case codes.NotFound:
		return repositories.NewError(op, repositories.ErrorNotFound, st.Message(), err)
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted, codes.OutOfRange:
		return repositories.NewError(op, repositories.ErrorConflict, st.Message(), err)
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal:
		return repositories.NewError(op, repositories.ErrorUnavailable, st.Message(), err)
	default:
		return repositories.NewError(op, repositories.ErrorUnknown, st.Message(), err)
	}
}

// IsNotFound reports whether err is a raw Firestore NotFound status.
func IsNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}
