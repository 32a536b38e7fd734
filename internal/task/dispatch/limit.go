package dispatch

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited throttles d to rps dispatches per second with the given burst.
// A non-positive rps returns d unchanged.
func Limited(d Dispatcher, rps float64, burst int) Dispatcher {
	if rps <= 0 {
		return d
	}
	if burst <= 0 {
		burst = 1
	}
	lim := rate.NewLimiter(rate.Limit(rps), burst)
	return Func(func(ctx context.Context, req Request) (Result, error) {
		if err := lim.Wait(ctx); err != nil {
			return Result{}, err
		}
		return d.Execute(ctx, req)
	})
}
