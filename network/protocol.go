package network

const (
	MsgTypeHeartbeat = 1
	MsgTypeLogin     = 2

	MsgTypeCreateMatch = 101
	MsgTypeJoinMatch   = 102
	MsgTypeForceStart  = 103
	MsgTypePauseMatch  = 104
	MsgTypeResumeMatch = 105

	MsgTypePlayerAction = 201
	MsgTypeTimeout      = 202

	MsgTypeMatchState     = 301
	MsgTypeTurnChanged    = 302
	MsgTypeMatchStarted   = 303
	MsgTypeColorPending   = 304
	MsgTypeMatchEnded     = 305
	MsgTypeMatchCancelled = 306

	MsgTypeActiveMatches = 401
	MsgTypeMatchHistory  = 402

	MsgTypeError = 500
)
