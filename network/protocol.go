package network

// Inbound message IDs (client -> relay).
const (
	MsgTypeHeartbeat    = 1
	MsgTypeJoinRoom     = 101
	MsgTypeLeaveRoom    = 102
	MsgTypeSetFirstRole = 103
	MsgTypeStartGame    = 104
	MsgTypePlayerMove   = 201
	MsgTypeSyncBoard    = 202
	MsgTypeRestart      = 203
)

// Outbound message IDs (relay -> client).
const (
	MsgTypeJoinedRoom       = 301
	MsgTypeRoomPaired       = 302
	MsgTypeGameStarted      = 303
	MsgTypeBoardUpdated     = 304
	MsgTypeOpponentMove     = 305
	MsgTypeMembersUpdate    = 306
	MsgTypePeerDisconnected = 307
	MsgTypeRestartNotice    = 308
)
