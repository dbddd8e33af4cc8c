package services

import (
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// sessionLocks hands out one mutex per chat session and forgets it once
// nobody holds or waits for it.
type sessionLocks struct {
	mutex sync.Mutex
	locks map[primitive.ObjectID]*sessionLock
}

type sessionLock struct {
	sync.Mutex
	refs int
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[primitive.ObjectID]*sessionLock)}
}

func (l *sessionLocks) lock(sessionID primitive.ObjectID) (unlock func()) {
	l.mutex.Lock()
	entry, ok := l.locks[sessionID]
	if !ok {
		entry = &sessionLock{}
		l.locks[sessionID] = entry
	}
	entry.refs++
	l.mutex.Unlock()

	entry.Lock()

	return func() {
		entry.Unlock()

		l.mutex.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, sessionID)
		}
		l.mutex.Unlock()
	}
}

func (l *sessionLocks) size() int {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return len(l.locks)
}
