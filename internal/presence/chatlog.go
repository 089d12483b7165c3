package presence

import "github.com/gatherly/office/internal/domain"

// ChatLog is an append-only, insertion-ordered message sequence with an
// optional retention cap. Cap 0 keeps everything; a positive cap drops the
// oldest entries once exceeded, never reordering what remains.
type ChatLog struct {
	cap  int
	msgs []domain.ChatMessage
}

func NewChatLog(cap int) *ChatLog {
	return &ChatLog{cap: cap}
}

func (l *ChatLog) Append(msg domain.ChatMessage) {
	l.msgs = append(l.msgs, msg)
	if l.cap > 0 && len(l.msgs) > l.cap {
		l.msgs = l.msgs[len(l.msgs)-l.cap:]
	}
}

func (l *ChatLog) Len() int { return len(l.msgs) }

// Messages returns a copy; the log itself is only ever mutated by Append.
func (l *ChatLog) Messages() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(l.msgs))
	copy(out, l.msgs)
	return out
}
