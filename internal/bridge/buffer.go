package bridge

import "sync"

// transcriptionBuffer accumulates one turn's user and assistant text. A pair
// is only ever handed out complete — both sides non-empty — and handing it
// out resets the buffer atomically, so partial turns are never persisted.
type transcriptionBuffer struct {
	mu        sync.Mutex
	user      string
	assistant string
}

// setUser records the finalized user utterance for the current turn.
func (b *transcriptionBuffer) setUser(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.user = text
}

// appendAssistant accumulates an assistant transcript delta.
func (b *transcriptionBuffer) appendAssistant(delta string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.assistant += delta
}

// setAssistant replaces the accumulated assistant text with the finalized
// version, which is authoritative over the deltas.
func (b *transcriptionBuffer) setAssistant(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.assistant = text
}

// takePair returns the completed (user, assistant) pair and resets the
// buffer. ok is false, and nothing is reset, while either side is still
// empty.
func (b *transcriptionBuffer) takePair() (user, assistant string, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.user == "" || b.assistant == "" {
		return "", "", false
	}
	user, assistant = b.user, b.assistant
	b.user, b.assistant = "", ""
	return user, assistant, true
}
