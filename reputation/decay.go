package reputation

import (
	"context"
	"time"

	"github.com/t402-io/aa-mempool/internal/log"
)

// DecayLoop runs DecayOnce on the given stores every interval until
// ctx is cancelled. It is anchored to the wall clock via time.Ticker
// (spec.md §9 Open Questions: anchor hourly decay to wall clock, not a
// block-height-relative or monotonic cadence, for deterministic
// replay). Decay errors never abort admission — DecayOnce has no
// error return, so there is nothing for this loop to propagate.
//
// onDecay, if non-nil, is called once per tick after the decay pass
// completes — the metrics package's RecordDecayPass, injected this way
// so reputation never needs to import metrics.
func DecayLoop(ctx context.Context, interval time.Duration, stores func() []Storage, logger *log.Logger, onDecay func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range stores() {
				s.DecayOnce()
			}
			if onDecay != nil {
				onDecay()
			}
			logger.Debugf("reputation decay tick applied to %d store(s)", len(stores()))
		}
	}
}
