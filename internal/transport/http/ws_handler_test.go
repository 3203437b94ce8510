package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/tandemtalk/server/internal/auth"
	"github.com/tandemtalk/server/internal/config"
	"github.com/tandemtalk/server/internal/core"
	"github.com/tandemtalk/server/internal/proto"
	"github.com/tandemtalk/server/internal/service/calls"
	"github.com/tandemtalk/server/internal/service/partners"
	"github.com/tandemtalk/server/internal/store"
)

type testServer struct {
	ts          *httptest.Server
	store       store.Store
	authService *auth.Service
}

func startTestServer(t *testing.T) (*testServer, context.CancelFunc) {
	t.Helper()

	st := createTestStore(t)
	authService := createTestAuthService(t, st, "test-secret")

	hub := core.NewHub(st, nil, core.Options{
		PersistTimeout: time.Second,
		HistoryLimit:   50,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	cfg := config.Default()
	cfg.Addr = ":0"
	logger := zerolog.New(zerolog.NewConsoleWriter())
	server := NewServer(hub, authService, partners.New(st), calls.New(st, nil), st, &cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, store: st, authService: authService}, cancel
}

// registerUser creates a user through the auth service and returns its id and
// a valid token.
func registerUser(t *testing.T, env *testServer, username string) (int64, string) {
	t.Helper()

	token, err := env.authService.Register(context.Background(), username, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	user, err := env.store.GetUserByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("lookup %s: %v", username, err)
	}
	return user.ID, token
}

func createChat(t *testing.T, env *testServer, userA, userB int64) *store.Chat {
	t.Helper()

	chat, err := env.store.CreateChat(context.Background(), store.DirectKey(userA, userB), userA, userB)
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	return chat
}

func dialWS(t *testing.T, ctx context.Context, env *testServer, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

type outboundFrame struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Error *proto.Error    `json:"error"`
}

// readUntilEvent reads frames until one matches the wanted event name.
// Interleaved presence snapshots and history frames are skipped.
func readUntilEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) outboundFrame {
	t.Helper()

	for {
		var frame outboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read waiting for %q: %v", event, err)
		}
		if frame.Type == proto.OutboundTypeError && event != proto.OutboundTypeError {
			t.Fatalf("unexpected error frame waiting for %q: %+v", event, frame.Error)
		}
		if frame.Event == event || (event == proto.OutboundTypeError && frame.Type == proto.OutboundTypeError) {
			return frame
		}
	}
}

func sendInbound(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", msgType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: msgType, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env, cancel := startTestServer(t)
	defer cancel()

	resp, err := env.ts.Client().Get(env.ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestWSRejectsMissingAndInvalidToken(t *testing.T) {
	env, cancel := startTestServer(t)
	defer cancel()

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	wsURL := strings.Replace(env.ts.URL, "http", "ws", 1) + "/ws"

	if _, _, err := websocket.Dial(ctx, wsURL, nil); err == nil {
		t.Fatal("dial without token should fail")
	}
	if _, _, err := websocket.Dial(ctx, wsURL+"?token=garbage", nil); err == nil {
		t.Fatal("dial with invalid token should fail")
	}
}

func TestWSMessageRoundTrip(t *testing.T) {
	env, cancel := startTestServer(t)
	defer cancel()

	aliceID, aliceToken := registerUser(t, env, "alice")
	bobID, bobToken := registerUser(t, env, "bob")
	chat := createChat(t, env, aliceID, bobID)

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	connA := dialWS(t, ctx, env, aliceToken)
	connB := dialWS(t, ctx, env, bobToken)

	sendInbound(t, ctx, connA, proto.InboundTypeJoinChat, proto.JoinChatData{ChatID: chat.ID})
	sendInbound(t, ctx, connB, proto.InboundTypeJoinChat, proto.JoinChatData{ChatID: chat.ID})

	// Joins deliver a history frame; both arrive before any sends below.
	readUntilEvent(t, ctx, connA, proto.EventHistory)
	readUntilEvent(t, ctx, connB, proto.EventHistory)

	sendInbound(t, ctx, connA, proto.InboundTypeSendMessage, proto.SendMessageData{
		ChatID:  chat.ID,
		Content: "hola, que tal",
		Ref:     "ref-1",
	})

	frameB := readUntilEvent(t, ctx, connB, proto.EventReceiveMessage)
	var deliveredB proto.EventReceiveMessageData
	if err := json.Unmarshal(frameB.Data, &deliveredB); err != nil {
		t.Fatalf("unmarshal delivery: %v", err)
	}
	if deliveredB.Message.Content != "hola, que tal" || deliveredB.Message.SenderID != aliceID {
		t.Fatalf("unexpected delivery: %+v", deliveredB)
	}
	if deliveredB.Ref != "" {
		t.Fatalf("ref must only be echoed to the sender, got %q", deliveredB.Ref)
	}
	if deliveredB.Message.ID == 0 {
		t.Fatal("delivered message must carry a store-assigned id")
	}

	frameA := readUntilEvent(t, ctx, connA, proto.EventReceiveMessage)
	var deliveredA proto.EventReceiveMessageData
	if err := json.Unmarshal(frameA.Data, &deliveredA); err != nil {
		t.Fatalf("unmarshal sender echo: %v", err)
	}
	if deliveredA.Ref != "ref-1" {
		t.Fatalf("sender echo must carry the ref, got %q", deliveredA.Ref)
	}
	if deliveredA.Message.ID != deliveredB.Message.ID {
		t.Fatal("both copies must reference the same persisted message")
	}

	// The message survived the round trip into storage.
	messages, err := env.store.ListMessages(context.Background(), chat.ID, 10, nil)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Body != "hola, que tal" {
		t.Fatalf("expected one persisted message, got %+v", messages)
	}
}

func TestWSHistoryOnJoin(t *testing.T) {
	env, cancel := startTestServer(t)
	defer cancel()

	aliceID, aliceToken := registerUser(t, env, "alice")
	bobID, _ := registerUser(t, env, "bob")
	chat := createChat(t, env, aliceID, bobID)

	for _, body := range []string{"first", "second"} {
		if _, err := env.store.InsertMessage(context.Background(), chat.ID, bobID, body); err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	conn := dialWS(t, ctx, env, aliceToken)
	sendInbound(t, ctx, conn, proto.InboundTypeJoinChat, proto.JoinChatData{ChatID: chat.ID})

	frame := readUntilEvent(t, ctx, conn, proto.EventHistory)
	var history proto.EventHistoryData
	if err := json.Unmarshal(frame.Data, &history); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(history.Messages) != 2 {
		t.Fatalf("expected 2 history messages, got %d", len(history.Messages))
	}
	if history.Messages[0].Content != "first" || history.Messages[1].Content != "second" {
		t.Fatalf("history must be chronological: %+v", history.Messages)
	}
}

func TestWSTypingRelay(t *testing.T) {
	env, cancel := startTestServer(t)
	defer cancel()

	aliceID, aliceToken := registerUser(t, env, "alice")
	bobID, bobToken := registerUser(t, env, "bob")
	chat := createChat(t, env, aliceID, bobID)

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	connA := dialWS(t, ctx, env, aliceToken)
	connB := dialWS(t, ctx, env, bobToken)

	sendInbound(t, ctx, connA, proto.InboundTypeJoinChat, proto.JoinChatData{ChatID: chat.ID})
	sendInbound(t, ctx, connB, proto.InboundTypeJoinChat, proto.JoinChatData{ChatID: chat.ID})
	readUntilEvent(t, ctx, connA, proto.EventHistory)
	readUntilEvent(t, ctx, connB, proto.EventHistory)

	sendInbound(t, ctx, connA, proto.InboundTypeTyping, proto.TypingData{ChatID: chat.ID, IsTyping: true})

	frame := readUntilEvent(t, ctx, connB, proto.EventUserTyping)
	var typing proto.EventUserTypingData
	if err := json.Unmarshal(frame.Data, &typing); err != nil {
		t.Fatalf("unmarshal typing: %v", err)
	}
	if typing.UserID != aliceID || typing.Username != "alice" || !typing.IsTyping {
		t.Fatalf("unexpected typing payload: %+v", typing)
	}
}

func TestWSRejectsUnknownMessageType(t *testing.T) {
	env, cancel := startTestServer(t)
	defer cancel()

	_, aliceToken := registerUser(t, env, "alice")

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	conn := dialWS(t, ctx, env, aliceToken)
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: "frobnicate"}); err != nil {
		t.Fatalf("write unknown type: %v", err)
	}

	frame := readUntilEvent(t, ctx, conn, proto.OutboundTypeError)
	if frame.Error == nil || frame.Error.Code != "invalid_message" {
		t.Fatalf("expected invalid_message error, got %+v", frame.Error)
	}
}
