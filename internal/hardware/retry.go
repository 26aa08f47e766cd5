package hardware

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Retrying wraps an Adapter with the spec §4.8 transient-failure policy:
// one attempt plus up to Retries retries, with Backoff between them,
// before the error surfaces to the caller.
type Retrying struct {
	Adapter
	Retries int
	Backoff time.Duration
	Log     zerolog.Logger
}

// NewRetrying wraps adapter with the spec-default retry policy.
func NewRetrying(adapter Adapter, log zerolog.Logger) *Retrying {
	return &Retrying{Adapter: adapter, Retries: DefaultRetries, Backoff: DefaultBackoff, Log: log}
}

func (r *Retrying) call(op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= r.Retries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		r.Log.Warn().Str("op", op).Int("attempt", attempt).Err(err).Msg("hardware transaction failed")
		if attempt < r.Retries {
			time.Sleep(r.Backoff)
		}
	}
	return err
}

func (r *Retrying) SetRelay(ctx context.Context, board string, channel int, on bool) error {
	return r.call("set_relay", func() error { return r.Adapter.SetRelay(ctx, board, channel, on) })
}

func (r *Retrying) GetRelay(ctx context.Context, board string, channel int) (bool, error) {
	var v bool
	err := r.call("get_relay", func() error {
		var innerErr error
		v, innerErr = r.Adapter.GetRelay(ctx, board, channel)
		return innerErr
	})
	return v, err
}

func (r *Retrying) CommitAll(ctx context.Context, board string, mask uint16) error {
	return r.call("commit_all", func() error { return r.Adapter.CommitAll(ctx, board, mask) })
}

func (r *Retrying) SetIntensity(ctx context.Context, boardID string, dacChannel int, pct float64) error {
	return r.call("set_intensity", func() error { return r.Adapter.SetIntensity(ctx, boardID, dacChannel, pct) })
}

func (r *Retrying) SetVoltage(ctx context.Context, boardID string, dacChannel int, volts float64) error {
	return r.call("set_voltage", func() error { return r.Adapter.SetVoltage(ctx, boardID, dacChannel, volts) })
}
