package residency

import (
	"github.com/mtrqq/memsim/pkg/process"
	"github.com/rs/zerolog/log"
)

type residentRef struct {
	next *residentRef
	prev *residentRef
	id   process.ID
}

// Queue records resident processes in admission order, the head being the
// longest-resident one and thus the next eviction victim.
//
// The list is paired with an index by id, so membership checks do not need a
// scan.
type Queue struct {
	head  *residentRef
	tail  *residentRef
	index map[process.ID]*residentRef
}

func New() *Queue {
	return &Queue{
		index: make(map[process.ID]*residentRef),
	}
}

func (q *Queue) Len() int {
	return len(q.index)
}

func (q *Queue) Contains(id process.ID) bool {
	_, exists := q.index[id]
	return exists
}

// Enqueue appends id at the tail. Returns false if id is already resident.
func (q *Queue) Enqueue(id process.ID) bool {
	if _, exists := q.index[id]; exists {
		log.Warn().Str("id", id.String()).Msg("attempted to enqueue already resident process")
		return false
	}

	ref := &residentRef{id: id, prev: q.tail}
	if q.tail != nil {
		q.tail.next = ref
	} else {
		q.head = ref
	}
	q.tail = ref
	q.index[id] = ref

	return true
}

// DequeueOldest removes and returns the head of the queue. The second result
// is false when nobody is resident.
func (q *Queue) DequeueOldest() (process.ID, bool) {
	if q.head == nil {
		return "", false
	}

	id := q.head.id
	q.unlink(q.head)
	return id, true
}

func (q *Queue) unlink(ref *residentRef) {
	if ref.prev != nil {
		ref.prev.next = ref.next
	} else {
		q.head = ref.next
	}

	if ref.next != nil {
		ref.next.prev = ref.prev
	} else {
		q.tail = ref.prev
	}

	ref.next = nil
	ref.prev = nil
	delete(q.index, ref.id)
}

// Visit walks the queue from oldest to newest until visitor returns false.
func (q *Queue) Visit(visitor func(id process.ID) bool) {
	for current := q.head; current != nil; current = current.next {
		if !visitor(current.id) {
			return
		}
	}
}

// IDs returns the resident ids from oldest to newest.
func (q *Queue) IDs() []process.ID {
	ids := make([]process.ID, 0, len(q.index))
	q.Visit(func(id process.ID) bool {
		ids = append(ids, id)
		return true
	})

	return ids
}
