package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// ---------- helpers ----------

// startTestServer spins up an httptest.Server with a Hub backed by a
// temp database and returns the server, its WebSocket URL, and the hub.
func startTestServer(t *testing.T) (*httptest.Server, string, *Hub) {
	t.Helper()

	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte("<html>test</html>"), 0o644)

	db, err := OpenDB(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	hub := NewHub(db)
	go hub.Run()

	srv := httptest.NewServer(SetupRoutes(hub, tmpDir))
	t.Cleanup(func() {
		srv.Close()
		hub.scheduler.Stop()
		db.Close()
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, wsURL, hub
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial WS: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// sendMsg sends a typed message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	raw, _ := json.Marshal(Envelope{T: msgType, Data: data})
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("write WS: %v", err)
	}
}

// wireMsg is one received frame. Binary frames carry a decoded
// GameState in State; text frames carry raw JSON data in D.
type wireMsg struct {
	T     string
	D     json.RawMessage
	State *GameState
}

// readWire reads one frame, decoding binary frames as msgpack GameState.
func readWire(t *testing.T, conn *websocket.Conn) wireMsg {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read WS: %v", err)
	}
	if msgType == websocket.BinaryMessage {
		var gs GameState
		if err := msgpack.Unmarshal(raw, &gs); err != nil {
			t.Fatalf("msgpack unmarshal: %v", err)
		}
		return wireMsg{T: EvtGameState, State: &gs}
	}
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return wireMsg{T: env.T, D: env.D}
}

// waitFor reads frames until one of the given type arrives, discarding
// interleaved state and lobby frames.
func waitFor(t *testing.T, conn *websocket.Conn, msgType string) wireMsg {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		msg := readWire(t, conn)
		if msg.T == msgType {
			return msg
		}
	}
	t.Fatalf("no %s message within deadline", msgType)
	return wireMsg{}
}

func decodeData(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

// createRoom sends createRoom and returns the ack.
func createRoom(t *testing.T, conn *websocket.Conn, name string, binary bool) JoinAck {
	t.Helper()
	sendMsg(t, conn, MsgCreateRoom, CreateRoomMsg{Name: name, Binary: binary})
	msg := waitFor(t, conn, EvtRoomCreated)
	var ack JoinAck
	decodeData(t, msg.D, &ack)
	if !ack.OK {
		t.Fatalf("createRoom failed: %s", ack.Error)
	}
	return ack
}

// ---------- room lifecycle over the wire ----------

func TestCreateRoomFlow(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)

	ack := createRoom(t, conn, "Alice", false)
	if !ack.IsHost {
		t.Error("room creator should be host")
	}
	if len(ack.RoomCode) != roomCodeLen {
		t.Errorf("room code %q, want %d chars", ack.RoomCode, roomCodeLen)
	}
	for _, ch := range ack.RoomCode {
		if !strings.ContainsRune(roomCodeAlphabet, ch) {
			t.Errorf("room code %q contains %q outside alphabet", ack.RoomCode, ch)
		}
	}
	if ack.Arena.Width != ArenaWidth || ack.Arena.Height != ArenaHeight {
		t.Errorf("arena = %+v", ack.Arena)
	}

	lobby := waitFor(t, conn, EvtLobbyUpdate)
	var lu LobbyUpdate
	decodeData(t, lobby.D, &lu)
	if len(lu.Players) != 1 || lu.Players[0].Name != "Alice" {
		t.Errorf("lobby players = %+v", lu.Players)
	}
	if lu.HostID != ack.PlayerID {
		t.Errorf("hostId = %s, want %s", lu.HostID, ack.PlayerID)
	}
}

func TestJoinAndStartFlow(t *testing.T) {
	_, wsURL, hub := startTestServer(t)
	host := dialWS(t, wsURL)
	guest := dialWS(t, wsURL)

	ack := createRoom(t, host, "Alice", false)

	// Codes are case-insensitive on join.
	sendMsg(t, guest, MsgJoinRoom, JoinRoomMsg{Name: "Bob", RoomCode: strings.ToLower(ack.RoomCode)})
	msg := waitFor(t, guest, EvtRoomJoined)
	var guestAck JoinAck
	decodeData(t, msg.D, &guestAck)
	if !guestAck.OK {
		t.Fatalf("join failed: %s", guestAck.Error)
	}
	if guestAck.IsHost {
		t.Error("joiner should not be host")
	}
	if guestAck.RoomCode != ack.RoomCode {
		t.Errorf("joined code %s, want %s", guestAck.RoomCode, ack.RoomCode)
	}

	// Both sides see the two-player roster.
	for _, conn := range []*websocket.Conn{host, guest} {
		var lu LobbyUpdate
		for {
			frame := waitFor(t, conn, EvtLobbyUpdate)
			decodeData(t, frame.D, &lu)
			if len(lu.Players) == 2 {
				break
			}
		}
		if lu.HostID != ack.PlayerID {
			t.Errorf("hostId = %s, want %s", lu.HostID, ack.PlayerID)
		}
	}

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := hub.ClientCount(); n != 2 {
		t.Errorf("hub tracks %d clients, want 2", n)
	}

	sendMsg(t, host, MsgStartGame, StartGameMsg{RoomCode: ack.RoomCode})
	waitFor(t, host, EvtGameStarted)
	waitFor(t, guest, EvtGameStarted)

	state := waitFor(t, guest, EvtGameState)
	var gs GameState
	decodeData(t, state.D, &gs)
	if len(gs.Players) != 2 {
		t.Fatalf("state players = %d, want 2", len(gs.Players))
	}
	if gs.Players[0].ID != ack.PlayerID {
		t.Errorf("first snapshot player = %s, want host %s", gs.Players[0].ID, ack.PlayerID)
	}
	if gs.Arena.Width != ArenaWidth {
		t.Errorf("arena width = %v", gs.Arena.Width)
	}
	for _, p := range gs.Players {
		if p.HP != PlayerMaxHP {
			t.Errorf("player %s hp = %d at match start", p.ID, p.HP)
		}
	}
}

func TestNonHostCannotStart(t *testing.T) {
	_, wsURL, hub := startTestServer(t)
	host := dialWS(t, wsURL)
	guest := dialWS(t, wsURL)

	ack := createRoom(t, host, "Alice", false)
	sendMsg(t, guest, MsgJoinRoom, JoinRoomMsg{Name: "Bob", RoomCode: ack.RoomCode})
	waitFor(t, guest, EvtRoomJoined)

	sendMsg(t, guest, MsgStartGame, StartGameMsg{RoomCode: ack.RoomCode})
	time.Sleep(100 * time.Millisecond)

	var status RoomStatus
	hub.scheduler.Call(func() {
		room, ok := hub.scheduler.registry.Lookup(ack.RoomCode)
		if !ok {
			t.Error("room disappeared")
			return
		}
		status = room.Status
	})
	if status != RoomLobby {
		t.Errorf("room status = %v after non-host start, want lobby", status)
	}

	sendMsg(t, host, MsgStartGame, StartGameMsg{RoomCode: ack.RoomCode})
	waitFor(t, guest, EvtGameStarted)
}

func TestRejectedCreateLeavesNoRoom(t *testing.T) {
	_, wsURL, hub := startTestServer(t)
	conn := dialWS(t, wsURL)

	sendMsg(t, conn, MsgCreateRoom, CreateRoomMsg{Name: "   "})
	msg := waitFor(t, conn, EvtRoomCreated)
	var ack JoinAck
	decodeData(t, msg.D, &ack)
	if ack.OK {
		t.Fatal("whitespace name must be rejected")
	}
	if ack.Error != ErrNameRequired.Error() {
		t.Errorf("error = %q", ack.Error)
	}

	var count int
	hub.scheduler.Call(func() { count = hub.scheduler.registry.RoomCount() })
	if count != 0 {
		t.Errorf("registry holds %d rooms after rejected create, want 0", count)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)

	sendMsg(t, conn, MsgJoinRoom, JoinRoomMsg{Name: "Bob", RoomCode: "ZZZZZZ"})
	msg := waitFor(t, conn, EvtRoomJoined)
	var ack JoinAck
	decodeData(t, msg.D, &ack)
	if ack.OK {
		t.Fatal("join of unknown room should fail")
	}
	if ack.Error != ErrRoomNotFound.Error() {
		t.Errorf("error = %q", ack.Error)
	}
}

func TestJoinAfterStartRejected(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	host := dialWS(t, wsURL)
	late := dialWS(t, wsURL)

	ack := createRoom(t, host, "Alice", false)
	sendMsg(t, host, MsgStartGame, StartGameMsg{RoomCode: ack.RoomCode})
	waitFor(t, host, EvtGameStarted)

	sendMsg(t, late, MsgJoinRoom, JoinRoomMsg{Name: "Bob", RoomCode: ack.RoomCode})
	msg := waitFor(t, late, EvtRoomJoined)
	var lateAck JoinAck
	decodeData(t, msg.D, &lateAck)
	if lateAck.OK {
		t.Fatal("joining a running room should fail")
	}
	if lateAck.Error != ErrRoomStarted.Error() {
		t.Errorf("error = %q", lateAck.Error)
	}
}

// ---------- simulation observable over the wire ----------

func TestInputMovesPlayer(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)

	ack := createRoom(t, conn, "Alice", false)
	sendMsg(t, conn, MsgStartGame, StartGameMsg{RoomCode: ack.RoomCode})
	waitFor(t, conn, EvtGameStarted)

	first := waitFor(t, conn, EvtGameState)
	var gs GameState
	decodeData(t, first.D, &gs)
	startX := gs.Players[0].X

	sendMsg(t, conn, MsgInput, PlayerInputMsg{
		RoomCode: ack.RoomCode,
		Input:    InputState{Right: true},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame := waitFor(t, conn, EvtGameState)
		decodeData(t, frame.D, &gs)
		if gs.Players[0].X > startX {
			return
		}
	}
	t.Fatalf("player never moved right of %v", startX)
}

func TestShootEmitsBullet(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)

	ack := createRoom(t, conn, "Alice", false)
	sendMsg(t, conn, MsgStartGame, StartGameMsg{RoomCode: ack.RoomCode})
	waitFor(t, conn, EvtGameStarted)

	angle := 0.0
	sendMsg(t, conn, MsgShoot, ShootMsg{RoomCode: ack.RoomCode, Angle: &angle})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame := waitFor(t, conn, EvtGameState)
		var gs GameState
		decodeData(t, frame.D, &gs)
		if len(gs.Bullets) > 0 {
			return
		}
	}
	t.Fatal("no bullet appeared in state frames")
}

func TestBinaryStateFrames(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)

	ack := createRoom(t, conn, "Alice", true)
	sendMsg(t, conn, MsgStartGame, StartGameMsg{RoomCode: ack.RoomCode})
	waitFor(t, conn, EvtGameStarted)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame := waitFor(t, conn, EvtGameState)
		if frame.State == nil {
			continue
		}
		gs := frame.State
		if len(gs.Players) != 1 || gs.Players[0].ID != ack.PlayerID {
			t.Fatalf("binary state players = %+v", gs.Players)
		}
		if gs.Arena.Width != ArenaWidth {
			t.Errorf("binary state arena width = %v", gs.Arena.Width)
		}
		return
	}
	t.Fatal("no binary state frame received")
}

func TestDisconnectRemovesEmptyRoom(t *testing.T) {
	_, wsURL, hub := startTestServer(t)
	conn := dialWS(t, wsURL)

	createRoom(t, conn, "Alice", false)
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		var count int
		hub.scheduler.Call(func() { count = hub.scheduler.registry.RoomCount() })
		if count == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("room not removed after sole player disconnected")
}

func TestLeaveReassignsHost(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	host := dialWS(t, wsURL)
	guest := dialWS(t, wsURL)

	ack := createRoom(t, host, "Alice", false)
	sendMsg(t, guest, MsgJoinRoom, JoinRoomMsg{Name: "Bob", RoomCode: ack.RoomCode})
	msg := waitFor(t, guest, EvtRoomJoined)
	var guestAck JoinAck
	decodeData(t, msg.D, &guestAck)

	sendMsg(t, host, MsgLeave, struct{}{})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame := waitFor(t, guest, EvtLobbyUpdate)
		var lu LobbyUpdate
		decodeData(t, frame.D, &lu)
		if lu.HostID == guestAck.PlayerID && len(lu.Players) == 1 {
			return
		}
	}
	t.Fatal("host never reassigned to remaining player")
}

// ---------- auth over the wire ----------

func TestAuthOverWebSocket(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)

	sendMsg(t, conn, MsgRegister, RegisterMsg{Username: "alice", Password: "hunter2"})
	msg := waitFor(t, conn, EvtAuthResult)
	var res AuthResult
	decodeData(t, msg.D, &res)
	if !res.OK {
		t.Fatalf("register failed: %s", res.Error)
	}

	sendMsg(t, conn, MsgLogin, LoginMsg{Username: "alice", Password: "hunter2"})
	msg = waitFor(t, conn, EvtAuthResult)
	decodeData(t, msg.D, &res)
	if !res.OK || res.Token == "" {
		t.Fatalf("login result = %+v", res)
	}

	sendMsg(t, conn, MsgResume, ResumeMsg{Token: res.Token})
	msg = waitFor(t, conn, EvtAuthResult)
	var resumed AuthResult
	decodeData(t, msg.D, &resumed)
	if !resumed.OK || resumed.Username != "alice" {
		t.Fatalf("resume result = %+v", resumed)
	}
}

// ---------- HTTP endpoints ----------

func TestHealthz(t *testing.T) {
	srv, _, _ := startTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /healthz status = %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)
	createRoom(t, conn, "Alice", false)

	// Room gauges refresh on the next scheduler pass.
	time.Sleep(3 * TickDuration)

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", resp.StatusCode)
	}
	var snap MetricsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if snap.Connections < 1 {
		t.Errorf("connections = %d, want >= 1", snap.Connections)
	}
	if snap.Rooms < 1 {
		t.Errorf("rooms = %d, want >= 1", snap.Rooms)
	}
}

func TestQREndpoint(t *testing.T) {
	srv, _, _ := startTestServer(t)

	resp, err := http.Get(srv.URL + "/qr?code=ABC234")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /qr status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q", ct)
	}

	bad, err := http.Get(srv.URL + "/qr?code=short")
	if err != nil {
		t.Fatal(err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("GET /qr with bad code status = %d, want 400", bad.StatusCode)
	}
}
