package binance

// Binance depth streams do not share a sequence space with the REST snapshot,
// so updates are validated with their U/u update-id range against the
// snapshot's lastUpdateId and canonical sequences are synthesized per
// product: the snapshot is 0 and every emitted level counts up from there.

// maxQueueLength caps pre-snapshot buffering before the feed restarts
const maxQueueLength = 1000

type depthUpdate struct {
	Event         string      `json:"e"`
	Time          int64       `json:"E"`
	Symbol        string      `json:"s"`
	FirstUpdateID int64       `json:"U"`
	FinalUpdateID int64       `json:"u"`
	Bids          [][2]string `json:"b"`
	Asks          [][2]string `json:"a"`
}

type depthSnapshot struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

type tradeEvent struct {
	Event        string `json:"e"`
	Time         int64  `json:"E"`
	Symbol       string `json:"s"`
	TradeID      int64  `json:"t"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	BuyerIsMaker bool   `json:"m"`
}

// depthTracker holds one product's update-id cursor, its pre-snapshot queue
// and the synthesized canonical sequence
type depthTracker struct {
	// next expected update id; -1 until a snapshot seeds it
	counter int64
	queue   []*depthUpdate
	seq     int64
}

func newDepthTracker() *depthTracker {
	return &depthTracker{counter: -1}
}

// nextSequence returns the next canonical sequence for this product
func (t *depthTracker) nextSequence() int64 {
	t.seq++
	return t.seq
}

// seed installs a snapshot baseline and replays the queue against it. It
// returns the queued updates that bridge the snapshot; resync means the
// queue could not bridge and the whole cycle must restart.
func (t *depthTracker) seed(lastUpdateID int64) (apply []*depthUpdate, resync bool) {
	t.counter = lastUpdateID + 1
	t.seq = 0

	queue := t.queue
	t.queue = nil
	for _, u := range queue {
		switch {
		case u.FinalUpdateID <= t.counter-1:
			// Entirely covered by the snapshot
			continue
		case u.FirstUpdateID <= t.counter && u.FinalUpdateID >= t.counter:
			apply = append(apply, u)
			t.counter = u.FinalUpdateID + 1
		default:
			// The queue jumps past the snapshot; start over
			t.reset()
			return nil, true
		}
	}
	return apply, false
}

// onDepth feeds one live update through the tracker. Before a snapshot it
// queues (overflow forces a resync); after, it validates the update-id range.
func (t *depthTracker) onDepth(u *depthUpdate) (apply []*depthUpdate, resync bool) {
	if t.counter == -1 {
		if len(t.queue) >= maxQueueLength {
			t.queue = nil
			return nil, true
		}
		t.queue = append(t.queue, u)
		return nil, false
	}

	if u.FinalUpdateID < t.counter {
		// Stale replay of something the snapshot already covers
		return nil, false
	}
	if u.FirstUpdateID > t.counter {
		t.reset()
		return nil, true
	}
	t.counter = u.FinalUpdateID + 1
	return []*depthUpdate{u}, false
}

func (t *depthTracker) reset() {
	t.counter = -1
	t.queue = nil
	t.seq = 0
}

// seeded reports whether a snapshot baseline is installed
func (t *depthTracker) seeded() bool {
	return t.counter != -1
}
