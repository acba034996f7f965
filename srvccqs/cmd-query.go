package decorator

import "context"

// P - params
type CmdHandler[P any] interface {
	Handle(ctx context.Context, p P) error
}

// Q - query, R - result
type QueryHandler[Q any, R any] interface {
	Handle(ctx context.Context, q Q) (R, error)
}

// P - params, R - result returned to the caller after the state change
type CmdResHandler[P any, R any] interface {
	Handle(ctx context.Context, p P) (R, error)
}

type CmdHandlerFunc[P any] func(ctx context.Context, p P) error

func (f CmdHandlerFunc[P]) Handle(ctx context.Context, p P) error {
	return f(ctx, p)
}

type QueryHandlerFunc[Q any, R any] func(ctx context.Context, q Q) (R, error)

func (f QueryHandlerFunc[Q, R]) Handle(ctx context.Context, q Q) (R, error) {
	return f(ctx, q)
}
