package services

import (
	"sync"
	"time"
)

type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
	ChangeAny    ChangeKind = "*"
)

// Change announces that a row owned by UserID changed. Subscribers treat it as
// a hint and re-read the store.
type Change struct {
	Table    string     `json:"table"`
	Kind     ChangeKind `json:"kind"`
	UserID   string     `json:"user_id"`
	RecordID string     `json:"record_id,omitempty"`
	At       time.Time  `json:"at"`
}

const subscriberBuffer = 16

type subscriber struct {
	userID string
	table  string
	kind   ChangeKind
	ch     chan Change
}

func (s *subscriber) matches(c Change) bool {
	if s.userID != c.UserID {
		return false
	}
	if s.table != "" && s.table != "*" && s.table != c.Table {
		return false
	}
	return s.kind == ChangeAny || s.kind == c.Kind
}

// Broker fans row changes out to in-process subscribers keyed by user, table
// and change kind. Publish never blocks; a full subscriber misses the hint and
// catches up on its next poll.
type Broker struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[uint64]*subscriber)}
}

// Subscription is a live registration. C is closed when the subscription ends.
type Subscription struct {
	C <-chan Change

	id     uint64
	broker *Broker
}

// Subscribe registers interest in changes to table ("" or "*" for every table)
// of the given kind for one user.
func (b *Broker) Subscribe(userID, table string, kind ChangeKind) *Subscription {
	if kind == "" {
		kind = ChangeAny
	}
	ch := make(chan Change, subscriberBuffer)

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[id] = &subscriber{userID: userID, table: table, kind: kind, ch: ch}
	b.mu.Unlock()

	return &Subscription{C: ch, id: id, broker: b}
}

// Close ends the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.broker.remove(s.id)
}

func (b *Broker) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(sub.ch)
	}
}

// Publish delivers c to every matching subscriber without blocking and returns
// how many received it.
func (b *Broker) Publish(c Change) int {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for _, sub := range b.subs {
		if !sub.matches(c) {
			continue
		}
		select {
		case sub.ch <- c:
			delivered++
		default:
		}
	}
	return delivered
}

// CloseUser ends every subscription held by userID, e.g. when their session ends.
func (b *Broker) CloseUser(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	closed := 0
	for id, sub := range b.subs {
		if sub.userID != userID {
			continue
		}
		delete(b.subs, id)
		close(sub.ch)
		closed++
	}
	return closed
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
