package geoerr

import (
	"context"
	"errors"
)

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// FromContext converts a done context into a KindCanceled error. It returns
// nil while ctx is still live.
func FromContext(ctx context.Context, op string) *Error {
	if err := ctx.Err(); err != nil {
		return New(KindCanceled, op, MsgCanceled, err)
	}
	return nil
}
