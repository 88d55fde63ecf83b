package audit_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MichaelCampos91/pedidos-sub000/internal/audit"
)

type collectingProcessor struct {
	mu      sync.Mutex
	batches [][]audit.Entry
}

func (p *collectingProcessor) Process(batch []audit.Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]audit.Entry, len(batch))
	copy(cp, batch)
	p.batches = append(p.batches, cp)
	return nil
}

func (p *collectingProcessor) entryCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.batches {
		n += len(b)
	}
	return n
}

func (p *collectingProcessor) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func TestWorkerPoolFlushesFullBatch(t *testing.T) {
	proc := &collectingProcessor{}
	pool := audit.NewWorkerPool(audit.PoolConfig{BatchSize: 3, Timeout: time.Minute}, proc)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx, 1)
	defer pool.Shutdown(cancel)

	for i := 0; i < 3; i++ {
		pool.Log(audit.Entry{OrderID: "o-1", Message: "event"})
	}

	assert.Eventually(t, func() bool {
		return proc.batchCount() == 1 && proc.entryCount() == 3
	}, time.Second, 10*time.Millisecond)
}

func TestWorkerPoolFlushesOnTimeout(t *testing.T) {
	proc := &collectingProcessor{}
	pool := audit.NewWorkerPool(audit.PoolConfig{BatchSize: 100, Timeout: 50 * time.Millisecond}, proc)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx, 1)
	defer pool.Shutdown(cancel)

	pool.Log(audit.Entry{OrderID: "o-1", Message: "first"})
	pool.Log(audit.Entry{OrderID: "o-2", Message: "second"})

	assert.Eventually(t, func() bool {
		return proc.entryCount() == 2
	}, time.Second, 10*time.Millisecond)
}

func TestWorkerPoolFlushesPartialBatchOnShutdown(t *testing.T) {
	proc := &collectingProcessor{}
	pool := audit.NewWorkerPool(audit.PoolConfig{BatchSize: 100, Timeout: time.Hour}, proc)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx, 1)

	pool.Log(audit.Entry{OrderID: "o-1", Message: "pending"})
	pool.Log(audit.Entry{OrderID: "o-2", Message: "pending"})

	// let the worker pull the entries into its batch before cancelling
	time.Sleep(100 * time.Millisecond)
	pool.Shutdown(cancel)

	require.Equal(t, 2, proc.entryCount())
}

func TestWorkerPoolFansOutToAllProcessors(t *testing.T) {
	first := &collectingProcessor{}
	second := &collectingProcessor{}
	pool := audit.NewWorkerPool(audit.PoolConfig{BatchSize: 1, Timeout: time.Minute}, first, second)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx, 1)
	defer pool.Shutdown(cancel)

	pool.Log(audit.Entry{OrderID: "o-1"})

	assert.Eventually(t, func() bool {
		return first.entryCount() == 1 && second.entryCount() == 1
	}, time.Second, 10*time.Millisecond)
}
