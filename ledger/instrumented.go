package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/catena-chat/catena/channel"
)

// InstrumentedRepository wraps a Repository and records Metrics around each
// call, so any concrete transport (rpcclient.Client, LocalRepository,
// MemoryRepository) can be observed uniformly.
type InstrumentedRepository struct {
	Repository
	metrics *Metrics
}

// Instrument wraps repo with m.
func Instrument(repo Repository, m *Metrics) *InstrumentedRepository {
	return &InstrumentedRepository{Repository: repo, metrics: m}
}

func (i *InstrumentedRepository) Get(ctx context.Context, slot channel.SlotAddress) (*StoredMessage, error) {
	start := time.Now()
	msg, err := i.Repository.Get(ctx, slot)
	i.metrics.CallLatency.WithLabelValues("get_message").Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		i.metrics.Gets.WithLabelValues("error").Inc()
	case msg == nil:
		i.metrics.Gets.WithLabelValues("miss").Inc()
	default:
		i.metrics.Gets.WithLabelValues("hit").Inc()
	}
	return msg, err
}

func (i *InstrumentedRepository) Put(ctx context.Context, slot channel.SlotAddress, ciphertext []byte) error {
	start := time.Now()
	err := i.Repository.Put(ctx, slot, ciphertext)
	i.metrics.CallLatency.WithLabelValues("publish").Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		i.metrics.Puts.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrSlotOccupied):
		i.metrics.Puts.WithLabelValues("occupied").Inc()
	default:
		i.metrics.Puts.WithLabelValues("error").Inc()
	}
	return err
}

var _ Repository = (*InstrumentedRepository)(nil)
