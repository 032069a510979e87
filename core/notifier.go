package orchestration

import "context"

// NotifierFunc adapts a plain function to the FailureNotifier interface.
type NotifierFunc func(ctx context.Context)

func (f NotifierFunc) NotifyFailure(ctx context.Context) {
	if f != nil {
		f(ctx)
	}
}
