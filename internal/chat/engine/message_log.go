package engine

import (
	"chat_sync_service/internal/chat/domain"
	errprocess "chat_sync_service/pkg/err"
)

// MessageLog ordered messages of one conversation, addressable by id and position.
// Not safe for concurrent use; the owning session serializes access.
type MessageLog struct {
	entries []domain.Message
	index   map[string]int // message id -> entries index
	window  domain.Window
	loaded  bool
}

// NewMessageLog create empty log
func NewMessageLog() *MessageLog {
	return &MessageLog{
		index:  make(map[string]int),
		window: domain.EmptyWindow(),
	}
}

// Append insert a new message at the end, or replace the entry with the same id in place.
// Returns true when an existing entry was replaced.
func (l *MessageLog) Append(m domain.Message) bool {
	if i, ok := l.index[m.ID]; ok {
		l.entries[i] = m.Clone()
		l.advance(m)
		return true
	}

	l.index[m.ID] = len(l.entries)
	l.entries = append(l.entries, m.Clone())
	l.advance(m)
	return false
}

// advance window end to the position of a sequenced entry.
// Entries without a position (optimistic sends) never move it.
func (l *MessageLog) advance(m domain.Message) {
	if m.Position != nil && *m.Position > l.window.End {
		l.window.End = *m.Position
	}
}

// Has message id present
func (l *MessageLog) Has(id string) bool {
	_, ok := l.index[id]
	return ok
}

// Get message by id
func (l *MessageLog) Get(id string) (domain.Message, bool) {
	i, ok := l.index[id]
	if !ok {
		return domain.Message{}, false
	}
	return l.entries[i].Clone(), true
}

// LoadWindow merge a fetched range [start, end] in front of what is already materialized.
// Fetched ids already in the log are refreshed in place. end < 0 returns ErrRangeUnavailable,
// which callers treat as an empty result.
func (l *MessageLog) LoadWindow(start, end int64, fetched []domain.Message) error {
	if end < 0 {
		return errprocess.ErrRangeUnavailable
	}
	if start < 0 {
		start = 0
	}

	prefix := make([]domain.Message, 0, len(fetched))
	seen := make(map[string]struct{}, len(fetched))
	for _, m := range fetched {
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		if i, ok := l.index[m.ID]; ok {
			l.entries[i] = m.Clone()
			continue
		}
		prefix = append(prefix, m.Clone())
	}

	existing := l.entries
	l.entries = append(prefix, existing...)
	l.reindex()

	if !l.loaded || l.window.IsEmpty() || start < l.window.Start {
		l.window.Start = start
	}
	if !l.loaded {
		// 載入前已到達的即時訊息可能在 end 之後，optimistic 不算
		newEnd := end
		for _, m := range existing {
			if m.Position != nil && *m.Position > newEnd {
				newEnd = *m.Position
			}
		}
		l.window.End = newEnd
	} else if end > l.window.End {
		l.window.End = end
	}
	l.loaded = true
	return nil
}

func (l *MessageLog) reindex() {
	l.index = make(map[string]int, len(l.entries))
	for i, m := range l.entries {
		l.index[m.ID] = i
	}
}

// Window currently materialized range
func (l *MessageLog) Window() domain.Window {
	return l.window
}

// Len number of visible entries
func (l *MessageLog) Len() int {
	return len(l.entries)
}

// Messages read-only ordered copy
func (l *MessageLog) Messages() []domain.Message {
	out := make([]domain.Message, len(l.entries))
	for i, m := range l.entries {
		out[i] = m.Clone()
	}
	return out
}
