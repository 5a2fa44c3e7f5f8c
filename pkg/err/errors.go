package errprocess

var (
	// ErrRangeUnavailable requested history window has no data
	ErrRangeUnavailable = New(CodeNotFound, "history range unavailable")
	// ErrHistoryFetchFailed history collaborator errored or timed out
	ErrHistoryFetchFailed = New(CodeUnavailable, "history fetch failed")
	// ErrStaleSessionWrite mutation attempted after the session closed
	ErrStaleSessionWrite = New(CodeFailedPrecondition, "session already closed")
	// ErrSessionConnecting operation needs the initial load to finish
	ErrSessionConnecting = New(CodeFailedPrecondition, "session still connecting")
	// ErrManagerClosed session manager already shut down
	ErrManagerClosed = New(CodeFailedPrecondition, "session manager closed")

	// ErrConversationNotFound conversation id unknown
	ErrConversationNotFound = New(CodeNotFound, "conversation not found")
	// ErrSessionNotFound no open session for the conversation
	ErrSessionNotFound = New(CodeNotFound, "session not found")
	// ErrNotParticipant member is not a participant of the conversation
	ErrNotParticipant = New(CodePermissionDenied, "not a participant of the conversation")
	// ErrEmptyContent message content is empty
	ErrEmptyContent = New(CodeInvalidArgument, "message content is empty")
	// ErrDuplicateMessage message id already stored in the conversation
	ErrDuplicateMessage = New(CodeAlreadyExists, "message already stored")
	// ErrInvalidRange start/end query invalid
	ErrInvalidRange = New(CodeInvalidArgument, "invalid message range")
)
