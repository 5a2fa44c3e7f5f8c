package engine

import (
	"chat_sync_service/internal/chat/domain"
	"chat_sync_service/pkg/logger"

	"go.uber.org/zap"
)

// Outcome result of reconciling an inbound message
type Outcome int

const (
	// OutcomeAppended new entry at the end of the log
	OutcomeAppended Outcome = iota
	// OutcomeReconciled echo replaced the local optimistic entry
	OutcomeReconciled
	// OutcomeRedelivered already known id refreshed in place
	OutcomeRedelivered
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAppended:
		return "appended"
	case OutcomeReconciled:
		return "reconciled"
	case OutcomeRedelivered:
		return "redelivered"
	}
	return "unknown"
}

// Reconciler matches echoes to the local participant's pending sends by id
type Reconciler struct {
	localID string
	pending map[string]struct{}
}

// NewReconciler create reconciler for the local participant
func NewReconciler(localID string) *Reconciler {
	return &Reconciler{
		localID: localID,
		pending: make(map[string]struct{}),
	}
}

// Optimistic append a locally originated message before any confirmation
func (r *Reconciler) Optimistic(log *MessageLog, m domain.Message) {
	r.pending[m.ID] = struct{}{}
	log.Append(m)
}

// Reconcile apply an inbound message to the log.
// A match is by id only, never content or timestamp.
func (r *Reconciler) Reconcile(log *MessageLog, m domain.Message) Outcome {
	if _, ok := r.pending[m.ID]; ok && m.SenderID == r.localID {
		delete(r.pending, m.ID)
		if log.Append(m) {
			return OutcomeReconciled
		}
		return OutcomeAppended
	}

	if log.Append(m) {
		return OutcomeRedelivered
	}
	if m.SenderID == r.localID {
		logger.Log.Debug("echo without pending send, appended",
			zap.String("conversation_id", m.ConversationID),
			zap.String("message_id", m.ID))
	}
	return OutcomeAppended
}

// Pending number of sends still waiting for their echo
func (r *Reconciler) Pending() int {
	return len(r.pending)
}

// IsPending message still waiting for its echo
func (r *Reconciler) IsPending(id string) bool {
	_, ok := r.pending[id]
	return ok
}
