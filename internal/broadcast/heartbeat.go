package broadcast

import (
	"context"
	"time"
)

// StartHeartbeat runs exactly one background goroutine that sends an
// empty-changes Update at every interval tick, bypassing the subscriber
// pipeline's "drop if empty" filter so idle connections still see
// liveness and the coalescer gets a periodic flush catalyst. It stops
// when ctx is done.
func StartHeartbeat(ctx context.Context, b *Broadcaster, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.Publish(Context{IsHeartbeat: true}, Update{
					Meta: Meta{
						ServerTimeMicros: uint64(time.Now().UnixMicro()),
						IntervalSeconds:  uint64(interval / time.Second),
					},
				})
			}
		}
	}()
}
