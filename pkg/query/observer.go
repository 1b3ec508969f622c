package query

import "sync"

const (
	StageStart  = "start"
	StageCached = "cached"
	// StageChunk carries a piece of the contradiction report in Message.
	StageChunk  = "chunk"
	StageDone   = "done"
	StageError  = "error"
)

// Event reports progress of one source during a query.
type Event struct {
	Source  string `json:"source"`
	Stage   string `json:"stage"`
	Message string `json:"message,omitempty"`
}

// Observer receives progress events. Calls are serialised, so an observer
// does not need its own locking. A nil Observer ignores events.
type Observer func(Event)

func (o Observer) emit(e Event) {
	if o != nil {
		o(e)
	}
}

func (o Observer) serialized() Observer {
	if o == nil {
		return nil
	}
	var mu sync.Mutex
	return func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		o(e)
	}
}
