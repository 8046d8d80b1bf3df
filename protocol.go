package main

import "encoding/json"

// Client -> Server message types
const (
	MsgRegister   = "register"
	MsgLogin      = "login"
	MsgResume     = "resumeSession"
	MsgCreateRoom = "createRoom"
	MsgJoinRoom   = "joinRoom"
	MsgStartGame  = "startGame"
	MsgInput      = "playerInput"
	MsgShoot      = "shoot"
	MsgLeave      = "leave"
)

// Server -> Client message types
const (
	EvtRoomCreated = "roomCreated"
	EvtRoomJoined  = "roomJoined"
	EvtLobbyUpdate = "lobbyUpdate"
	EvtGameStarted = "gameStarted"
	EvtGameState   = "gameState"
	EvtAuthResult  = "authResult"
	EvtError       = "error"
)

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage avoids double-unmarshal
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// CreateRoomMsg requests a fresh room with the sender as host
type CreateRoomMsg struct {
	Name   string `json:"name"`
	Binary bool   `json:"bin,omitempty"` // opt into msgpack state frames
}

// JoinRoomMsg requests to join an existing lobby
type JoinRoomMsg struct {
	Name     string `json:"name"`
	RoomCode string `json:"roomCode"`
	Binary   bool   `json:"bin,omitempty"`
}

// JoinAck answers CreateRoom and JoinRoom
type JoinAck struct {
	OK       bool      `json:"ok"`
	Error    string    `json:"error,omitempty"`
	RoomCode string    `json:"roomCode,omitempty"`
	PlayerID string    `json:"playerId,omitempty"`
	IsHost   bool      `json:"isHost"`
	Arena    ArenaInfo `json:"arena"`
}

// StartGameMsg is fire-and-forget; only effective from the host
type StartGameMsg struct {
	RoomCode string `json:"roomCode"`
}

// InputState carries the four movement flags and an optional facing angle
type InputState struct {
	Up    bool     `json:"up"`
	Down  bool     `json:"down"`
	Left  bool     `json:"left"`
	Right bool     `json:"right"`
	Angle *float64 `json:"angle,omitempty"`
}

// PlayerInputMsg overwrites the sender's control state for the next tick
type PlayerInputMsg struct {
	RoomCode string     `json:"roomCode"`
	Input    InputState `json:"input"`
}

// ShootMsg fires one projectile along the given (or last known) angle
type ShootMsg struct {
	RoomCode string   `json:"roomCode"`
	Angle    *float64 `json:"angle,omitempty"`
}

// RegisterMsg creates an account
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginMsg authenticates an account
type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ResumeMsg restores a previous login from its token
type ResumeMsg struct {
	Token string `json:"token"`
}

// AuthResult answers register, login and resumeSession
type AuthResult struct {
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Username string `json:"username,omitempty"`
	Token    string `json:"token,omitempty"`
}

// ErrorMsg reports a command rejection
type ErrorMsg struct {
	Msg string `json:"msg"`
}
