package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/harvestly/cart-engine/api/responses"
	pkgerrors "github.com/harvestly/cart-engine/pkg/errors"
	"github.com/harvestly/cart-engine/pkg/logger"
)

// FaultSink receives panics recovered at the HTTP surface, the same path
// render faults take inside the engine.
type FaultSink interface {
	Report(ctx context.Context, err error, component string, severity string)
}

func Recoverer(logg *logger.Logger, sink FaultSink) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					err := fmt.Errorf("panic: %v", rec)
					ctx := r.Context()
					if logg != nil {
						ctx = logg.WithFields(ctx, map[string]any{"panic": rec})
						logg.Error(ctx, "panic.recovered", err)
					}
					if sink != nil {
						sink.Report(ctx, err, "http", "high")
					}
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
