package signals

import (
	"context"

	"github.com/vovakirdan/wiremsg/internal/store"
)

// Thread returns the message rootID followed by every reply below it in
// breadth-first order.
func (d *Dispatcher) Thread(ctx context.Context, rootID int64) ([]*store.Message, error) {
	root, err := d.store.GetMessage(ctx, rootID)
	if err != nil {
		return nil, mapNotFound(err, ErrMessageNotFound)
	}
	replies, err := descendants(ctx, d.store, []int64{root.ID})
	if err != nil {
		return nil, err
	}
	return append([]*store.Message{root}, replies...), nil
}

// descendants walks the reply tree below roots with a FIFO work-list, one
// query per level, so deep threads never grow the call stack. Roots are not
// included in the result.
func descendants(ctx context.Context, q store.MessageStore, roots []int64) ([]*store.Message, error) {
	seen := make(map[int64]struct{}, len(roots))
	for _, id := range roots {
		seen[id] = struct{}{}
	}

	var out []*store.Message
	queue := append([]int64(nil), roots...)
	for len(queue) > 0 {
		level := queue
		queue = nil

		replies, err := q.ListReplies(ctx, level)
		if err != nil {
			return nil, err
		}
		for _, r := range replies {
			if _, ok := seen[r.ID]; ok {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r)
			queue = append(queue, r.ID)
		}
	}
	return out, nil
}
