package dcontext

import "context"

// DetachedContext returns a context that carries the same values as ctx
// (logger, fields) but is never canceled by ctx's cancellation. Used for
// cleanup that must run to completion after a backup or prune is canceled,
// such as releasing the repository lock.
func DetachedContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
