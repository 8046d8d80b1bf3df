package main

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 60
)

// Client represents one WebSocket connection and its session binding:
// once the connection joins a room it carries a (roomCode, playerID)
// pair that mediates every later command and receives that room's
// snapshots. playerID and roomCode are only touched on the read-pump
// goroutine; binary and all room state only inside scheduler closures.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string

	playerID string
	roomCode string
	binary   bool // msgpack state frames requested

	username string // authenticated account, "" = guest

	msgCount   int
	msgResetAt time.Time
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Log.Debugw("ws read", "addr", c.remoteAddr, "err", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			Log.Infow("rate limit exceeded, disconnecting", "addr", c.remoteAddr)
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 0xFF prefix marks frames queued by SendBinary
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON marshals and sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		Log.Errorw("marshal", "err", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message. Never blocks:
// a client that cannot keep up gets snapshots dropped, not queued.
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message.
// Prefixes with 0xFF so WritePump can distinguish from text.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// WantsBinary reports whether the client opted into msgpack state frames
func (c *Client) WantsBinary() bool {
	return c.binary
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		Log.Debugw("unmarshal", "addr", c.remoteAddr, "err", err)
		return
	}

	switch env.T {
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgResume:
		c.handleResume(env.D)
	case MsgCreateRoom:
		c.handleCreateRoom(env.D)
	case MsgJoinRoom:
		c.handleJoinRoom(env.D)
	case MsgStartGame:
		c.handleStartGame(env.D)
	case MsgInput:
		c.handleInput(env.D)
	case MsgShoot:
		c.handleShoot(env.D)
	case MsgLeave:
		c.handleLeave()
	default:
		c.SendJSON(Envelope{T: EvtError, Data: ErrorMsg{Msg: "unknown message type"}})
	}
}

func (c *Client) handleRegister(data json.RawMessage) {
	var msg RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if err := c.hub.auth.Register(msg.Username, msg.Password); err != nil {
		c.SendJSON(Envelope{T: EvtAuthResult, Data: AuthResult{OK: false, Error: err.Error()}})
		return
	}
	c.SendJSON(Envelope{T: EvtAuthResult, Data: AuthResult{OK: true}})
}

func (c *Client) handleLogin(data json.RawMessage) {
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	token, err := c.hub.auth.Login(msg.Username, msg.Password, c.remoteAddr)
	if err != nil {
		c.SendJSON(Envelope{T: EvtAuthResult, Data: AuthResult{OK: false, Error: err.Error()}})
		return
	}
	c.username = msg.Username
	c.SendJSON(Envelope{T: EvtAuthResult, Data: AuthResult{OK: true, Username: msg.Username, Token: token}})
}

func (c *Client) handleResume(data json.RawMessage) {
	var msg ResumeMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	username, err := c.hub.auth.ResumeSession(msg.Token)
	if err != nil {
		c.SendJSON(Envelope{T: EvtAuthResult, Data: AuthResult{OK: false, Error: "invalid session"}})
		return
	}
	c.username = username
	c.SendJSON(Envelope{T: EvtAuthResult, Data: AuthResult{OK: true, Username: username, Token: msg.Token}})
}

func (c *Client) handleCreateRoom(data json.RawMessage) {
	var msg CreateRoomMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if c.roomCode != "" {
		c.SendJSON(Envelope{T: EvtRoomCreated, Data: JoinAck{OK: false, Error: "already in a room"}})
		return
	}

	pid := uuid.NewString()
	var ack JoinAck
	c.hub.scheduler.Call(func() {
		room := c.hub.scheduler.registry.CreateRoom()
		p, err := room.AddPlayer(pid, msg.Name)
		if err != nil {
			c.hub.scheduler.registry.DropIfEmpty(room.Code)
			ack = JoinAck{OK: false, Error: err.Error()}
			return
		}
		// binary is read during broadcasts, so it only changes here
		// on the scheduler goroutine.
		c.binary = msg.Binary
		room.BindSession(p.ID, c)
		ack = JoinAck{
			OK:       true,
			RoomCode: room.Code,
			PlayerID: p.ID,
			IsHost:   room.HostID == p.ID,
			Arena:    DefaultArena,
		}
	})
	if ack.OK {
		c.playerID = pid
		c.roomCode = ack.RoomCode
	}
	c.SendJSON(Envelope{T: EvtRoomCreated, Data: ack})
	if ack.OK {
		c.pushLobbyUpdate(ack.RoomCode)
	}
}

// pushLobbyUpdate broadcasts the roster after the join ack has been
// queued, so the joiner learns its own id before the first roster push.
func (c *Client) pushLobbyUpdate(code string) {
	c.hub.scheduler.Do(func() {
		room, ok := c.hub.scheduler.registry.Lookup(code)
		if !ok || room.Status != RoomLobby {
			return
		}
		room.BroadcastEvent(EvtLobbyUpdate, room.LobbyState())
	})
}

func (c *Client) handleJoinRoom(data json.RawMessage) {
	var msg JoinRoomMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if c.roomCode != "" {
		c.SendJSON(Envelope{T: EvtRoomJoined, Data: JoinAck{OK: false, Error: "already in a room"}})
		return
	}

	pid := uuid.NewString()
	var ack JoinAck
	c.hub.scheduler.Call(func() {
		room, ok := c.hub.scheduler.registry.Lookup(msg.RoomCode)
		if !ok {
			ack = JoinAck{OK: false, Error: ErrRoomNotFound.Error()}
			return
		}
		p, err := room.AddPlayer(pid, msg.Name)
		if err != nil {
			ack = JoinAck{OK: false, Error: err.Error()}
			return
		}
		c.binary = msg.Binary
		room.BindSession(p.ID, c)
		ack = JoinAck{
			OK:       true,
			RoomCode: room.Code,
			PlayerID: p.ID,
			IsHost:   room.HostID == p.ID,
			Arena:    DefaultArena,
		}
	})
	if ack.OK {
		c.playerID = pid
		c.roomCode = ack.RoomCode
	}
	c.SendJSON(Envelope{T: EvtRoomJoined, Data: ack})
	if ack.OK {
		c.pushLobbyUpdate(ack.RoomCode)
	}
}

func (c *Client) handleStartGame(data json.RawMessage) {
	var msg StartGameMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	pid, code := c.playerID, c.roomCode
	if pid == "" || code == "" {
		return
	}
	// Fire-and-forget: a non-host start is observable only through the
	// absence of gameStarted.
	c.hub.scheduler.Do(func() {
		room, ok := c.hub.scheduler.registry.Lookup(code)
		if !ok {
			return
		}
		if room.Start(pid) {
			room.BroadcastEvent(EvtGameStarted, struct{}{})
		}
	})
}

func (c *Client) handleInput(data json.RawMessage) {
	var msg PlayerInputMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	pid, code := c.playerID, c.roomCode
	if pid == "" || code == "" {
		return
	}
	ctrl := ControlState{
		Up:    msg.Input.Up,
		Down:  msg.Input.Down,
		Left:  msg.Input.Left,
		Right: msg.Input.Right,
	}
	angle := msg.Input.Angle
	c.hub.scheduler.Do(func() {
		room, ok := c.hub.scheduler.registry.Lookup(code)
		if !ok {
			return
		}
		room.SetInput(pid, ctrl, angle)
	})
}

func (c *Client) handleShoot(data json.RawMessage) {
	var msg ShootMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	pid, code := c.playerID, c.roomCode
	if pid == "" || code == "" {
		return
	}
	angle := msg.Angle
	c.hub.scheduler.Do(func() {
		room, ok := c.hub.scheduler.registry.Lookup(code)
		if !ok {
			return
		}
		room.FireProjectile(pid, angle)
	})
}

func (c *Client) handleLeave() {
	pid := c.playerID
	if pid == "" {
		return
	}
	c.playerID = ""
	c.roomCode = ""
	c.hub.scheduler.Do(func() {
		c.binary = false
		c.hub.scheduler.registry.RemovePlayer(pid)
	})
}
