// Package ledger keeps per-connection reference counts for subscribed topics.
//
// A topic is present in the ledger iff at least one registration needs it; an
// entry never holds a count of zero. The ledger is not safe for concurrent use,
// callers guard it with the same lock that guards their registration set.
package ledger

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type Ledger struct {
	counts *orderedmap.OrderedMap[string, int]
}

func New() *Ledger {
	return &Ledger{counts: orderedmap.New[string, int]()}
}

// Acquire increments the count for topic and reports whether this was the first
// reference, in which case the caller must subscribe.
func (l *Ledger) Acquire(topic string) bool {
	n, _ := l.counts.Get(topic)
	l.counts.Set(topic, n+1)
	return n == 0
}

// Release decrements the count for topic and reports whether that dropped the
// last reference, in which case the caller must unsubscribe. Releasing a topic
// that is not held is a no-op.
func (l *Ledger) Release(topic string) bool {
	n, ok := l.counts.Get(topic)
	if !ok {
		return false
	}
	if n <= 1 {
		l.counts.Delete(topic)
		return true
	}
	l.counts.Set(topic, n-1)
	return false
}

func (l *Ledger) Count(topic string) int {
	n, _ := l.counts.Get(topic)
	return n
}

// Topics lists the held topics in the order they were first acquired.
func (l *Ledger) Topics() []string {
	topics := make([]string, 0, l.counts.Len())
	for pair := l.counts.Oldest(); pair != nil; pair = pair.Next() {
		topics = append(topics, pair.Key)
	}
	return topics
}

func (l *Ledger) Len() int {
	return l.counts.Len()
}
