package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tessro/encore/internal/core"
	encerr "github.com/tessro/encore/internal/errors"
	"github.com/tessro/encore/internal/store"
)

// readPartition loads the records stored under key. An absent key is an
// empty history.
func readPartition(ctx context.Context, s store.Store, key string) ([]core.HistoryRecord, error) {
	data, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok || len(data) == 0 {
		return []core.HistoryRecord{}, nil
	}

	var records []core.HistoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", encerr.ErrStoreCorrupt, key, err)
	}
	if records == nil {
		records = []core.HistoryRecord{}
	}
	return records, nil
}

func writePartition(ctx context.Context, s store.Store, key string, records []core.HistoryRecord) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// partitionLocks hands out one mutex per identity so operations on the same
// partition run one at a time while different identities proceed in parallel.
type partitionLocks struct {
	mu    sync.Mutex
	locks map[core.Identity]*sync.Mutex
}

func (p *partitionLocks) lock(identity core.Identity) func() {
	p.mu.Lock()
	if p.locks == nil {
		p.locks = make(map[core.Identity]*sync.Mutex)
	}
	l, ok := p.locks[identity]
	if !ok {
		l = &sync.Mutex{}
		p.locks[identity] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}
