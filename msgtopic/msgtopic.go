// Package msgtopic implements the named message topic from spec.md §4.7,
// grounded on original_source's message_topics.cpp: a persistent,
// append-only multicast log keyed by topic name, with a monotonically
// increasing per-topic transaction id and entries that are never
// garbage collected, so any number of subscribers can replay from
// whatever transaction they last saw.
package msgtopic

import (
	"sync"

	"github.com/maxdev1/ghostkernel/hashmap"
	"github.com/maxdev1/ghostkernel/waitqueue"
)

// Status mirrors the original's G_MESSAGE_TOPIC_*_STATUS.
type Status int

const (
	Success Status = iota
	Empty
)

// Entry is one posted message, numbered by its topic-local transaction.
type Entry struct {
	SenderTaskID int32
	Transaction  int64
	Data         []byte
}

// FromStart receives from the very beginning of a topic's log.
const FromStart int64 = -1

type topic struct {
	mu      sync.Mutex
	entries []*Entry
	nextTxn int64
	waiters waitqueue.Queue
}

// Table is the global name->topic registry, mirroring
// _messageTopicsGetOrCreate.
type Table struct {
	topics *hashmap.Map[string, *topic]
}

func NewTable() *Table {
	return &Table{topics: hashmap.New[string, *topic](16)}
}

func (t *Table) topicFor(name string) *topic {
	return t.topics.GetOrCreate(name, func() *topic { return &topic{} })
}

// Post appends data to the named topic's log and returns the transaction
// id it was assigned. Topics are created on first use and are never
// deleted, so the assigned id only ever grows.
func (t *Table) Post(name string, sender int32, data []byte) int64 {
	tp := t.topicFor(name)

	tp.mu.Lock()
	txn := tp.nextTxn
	tp.nextTxn++
	tp.entries = append(tp.entries, &Entry{SenderTaskID: sender, Transaction: txn, Data: data})
	tp.mu.Unlock()

	tp.waiters.Wake()
	return txn
}

// Receive returns the oldest entry with Transaction > after (FromStart
// to read from the beginning). If none exists yet and blocking is false
// it returns Empty immediately; otherwise it parks until Post appends a
// qualifying entry.
func (t *Table) Receive(name string, after int64, blocking bool) (*Entry, Status) {
	tp := t.topicFor(name)

	for {
		tp.mu.Lock()
		for _, e := range tp.entries {
			if e.Transaction > after {
				tp.mu.Unlock()
				return e, Success
			}
		}
		if !blocking {
			tp.mu.Unlock()
			return nil, Empty
		}
		wake := tp.waiters.Add(0)
		tp.mu.Unlock()
		<-wake
	}
}
