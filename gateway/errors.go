package gateway

import (
	"context"
	"errors"
	"fmt"

	"connectrpc.com/connect"

	appext "github.com/masegraye/appext-go"
)

// errUnknownSession is reported for session ids the service does not know,
// including sessions that were closed.
var errUnknownSession = errors.New("unknown session")

// toConnectError maps a domain error to a Connect error.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, appext.ErrHandleNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, appext.ErrUnsupportedCapability):
		return connect.NewError(connect.CodeUnimplemented, err)
	case errors.Is(err, appext.ErrClosed), errors.Is(err, errUnknownSession):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, appext.ErrInvalidArgument):
		return connect.NewError(connect.CodeInvalidArgument, err)
	default:
		return connect.NewError(connect.CodeUnknown, err)
	}
}

// fromConnectError maps a Connect error back to the domain sentinel so
// callers can keep using errors.Is across the wire.
func fromConnectError(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if !errors.As(err, &ce) {
		return err
	}

	var sentinel error
	switch ce.Code() {
	case connect.CodeNotFound:
		sentinel = appext.ErrHandleNotFound
	case connect.CodeUnimplemented:
		sentinel = appext.ErrUnsupportedCapability
	case connect.CodeFailedPrecondition:
		sentinel = appext.ErrClosed
	case connect.CodeInvalidArgument:
		sentinel = appext.ErrInvalidArgument
	case connect.CodeUnauthenticated:
		sentinel = ErrUnauthenticated
	case connect.CodeCanceled:
		sentinel = context.Canceled
	case connect.CodeDeadlineExceeded:
		sentinel = context.DeadlineExceeded
	default:
		return err
	}
	return fmt.Errorf("%w: %s", sentinel, ce.Message())
}
