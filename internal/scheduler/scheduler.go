// Package scheduler persists projected records into the target table: empty
// rows discovered by the pre-scan are filled first, the remainder is
// appended in bounded chunks.
package scheduler

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/collector-cli/internal/model"
	"github.com/sells-group/collector-cli/internal/store"
)

// SlotPool holds the empty rows available for reuse, in discovery order.
// A popped slot is gone for the rest of the run even if the fill fails.
type SlotPool struct {
	ids []string
}

// NewSlotPool wraps the discovered row ids.
func NewSlotPool(ids []string) *SlotPool {
	return &SlotPool{ids: ids}
}

// Pop removes and returns the next slot.
func (p *SlotPool) Pop() (string, bool) {
	if len(p.ids) == 0 {
		return "", false
	}
	id := p.ids[0]
	p.ids = p.ids[1:]
	return id, true
}

// Len returns the number of remaining slots.
func (p *SlotPool) Len() int { return len(p.ids) }

// PersistResult is the accounting of one persist call. AssignedIDs is
// indexed by the record's position in the input batch; a dropped record
// leaves an empty string.
type PersistResult struct {
	Filled      int
	Appended    int
	Dropped     int
	AssignedIDs []string
}

// Written returns the count of records that reached the store.
func (r *PersistResult) Written() int { return r.Filled + r.Appended }

// Scheduler writes batches of projected records to one table.
type Scheduler struct {
	store store.TableStore
	chunk int
	log   *zap.Logger
}

// New creates a scheduler. chunkSize bounds each append batch; zero means
// the default of 50.
func New(st store.TableStore, chunkSize int) *Scheduler {
	if chunkSize <= 0 {
		chunkSize = 50
	}
	return &Scheduler{store: st, chunk: chunkSize, log: zap.L().Named("scheduler")}
}

// Persist writes the batch: phase 1 fills empty slots in pool order, phase 2
// appends what remains in chunks. A record whose fill fails mid-write goes
// to the back of the pending queue and is retried through the append phase;
// a second failure drops it for good. Cancellation is checked between every
// slot fill and every chunk; committed writes stay committed.
func (s *Scheduler) Persist(ctx context.Context, records []*model.ProjectedRecord, slots *SlotPool) (*PersistResult, error) {
	res := &PersistResult{AssignedIDs: make([]string, len(records))}

	pending := make([]int, 0, len(records))
	for i := range records {
		pending = append(pending, i)
	}
	failedOnce := make(map[int]bool)

	// Phase 1: reuse empty rows.
	for len(pending) > 0 {
		if ctx.Err() != nil {
			return res, nil
		}
		rowID, ok := slots.Pop()
		if !ok {
			break
		}
		idx := pending[0]
		pending = pending[1:]

		if err := s.fillSlot(ctx, rowID, records[idx]); err != nil {
			s.log.Warn("slot fill failed, requeueing for append",
				zap.String("row", rowID),
				zap.String("key", records[idx].Key),
				zap.Error(err),
			)
			failedOnce[idx] = true
			pending = append(pending, idx)
			continue
		}
		res.AssignedIDs[idx] = rowID
		res.Filled++
	}

	// Phase 2: append the remainder in chunks.
	batcher, canBatch := s.store.(store.BatchInserter)
	for len(pending) > 0 {
		if ctx.Err() != nil {
			return res, nil
		}
		n := s.chunk
		if n > len(pending) {
			n = len(pending)
		}
		chunk := pending[:n]
		pending = pending[n:]

		appended := false
		if canBatch {
			values := make([]map[string]any, len(chunk))
			for i, idx := range chunk {
				values[i] = records[idx].Values
			}
			ids, err := batcher.AddRecords(ctx, values)
			if err == nil {
				for i, idx := range chunk {
					res.AssignedIDs[idx] = ids[i]
				}
				res.Appended += len(chunk)
				appended = true
			} else {
				s.log.Warn("batch append failed, retrying records individually", zap.Error(err))
			}
		}
		if appended {
			continue
		}

		// No batch capability, or the batch failed: one record at a time.
		for _, idx := range chunk {
			if ctx.Err() != nil {
				return res, nil
			}
			id, err := s.store.AddRecord(ctx, records[idx].Values)
			if err == nil {
				res.AssignedIDs[idx] = id
				res.Appended++
				continue
			}
			if failedOnce[idx] {
				s.log.Error("record dropped after retried write failed",
					zap.String("key", records[idx].Key),
					zap.Error(err),
				)
				res.Dropped++
				continue
			}
			failedOnce[idx] = true
			pending = append(pending, idx)
		}
	}

	return res, nil
}

// fillSlot writes every field of the record into an existing row, in
// declared field order.
func (s *Scheduler) fillSlot(ctx context.Context, rowID string, rec *model.ProjectedRecord) error {
	for _, name := range rec.Order {
		if err := s.store.SetCellValue(ctx, name, rowID, rec.Values[name]); err != nil {
			return err
		}
	}
	return nil
}
