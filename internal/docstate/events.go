package docstate

// Event is delivered to listeners registered with Subscribe.
type Event interface {
	eventName() string
}

// SaveError is emitted when Save fails so the client can offer a retry.
type SaveError struct {
	Message    string `json:"message"`
	DocumentID string `json:"documentId"`
}

// ApplyContent asks the owner of the editor surface to merge Content into the
// live document.
type ApplyContent struct {
	Content string `json:"content"`
}

func (SaveError) eventName() string    { return "document-save-error" }
func (ApplyContent) eventName() string { return "apply-content-to-document" }

// EventName returns the signal name clients subscribe to.
func EventName(e Event) string { return e.eventName() }

// Subscribe registers fn for every future event. Listeners run synchronously
// on the emitting goroutine, outside the state lock.
func (s *State) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *State) RequestApply(content string) {
	s.emit(ApplyContent{Content: content})
}

func (s *State) emit(e Event) {
	s.mu.Lock()
	listeners := make([]func(Event), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(e)
	}
}
