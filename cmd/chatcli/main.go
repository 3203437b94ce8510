// chatcli is a terminal client for a TandemTalk chat: it joins one chat,
// prints incoming events and sends stdin lines as messages.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/tandemtalk/server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("chatcli: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "JWT obtained from /api/login")
	chatID := flag.Int64("chat", 0, "chat id to join")
	flag.Parse()

	if *token == "" {
		return errors.New("-token is required")
	}
	if *chatID <= 0 {
		return errors.New("-chat is required")
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr+"?token="+*token, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	joinPayload, err := json.Marshal(proto.JoinChatData{ChatID: *chatID})
	if err != nil {
		return fmt.Errorf("marshal join: %w", err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeJoinChat, Data: joinPayload}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	fmt.Printf("Connected to %s, chat %d\n", *addr, *chatID)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn, *chatID)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		if frame.Type == proto.OutboundTypeError && frame.Error != nil {
			fmt.Printf("!! %s: %s\n", frame.Error.Code, frame.Error.Msg)
			continue
		}

		switch frame.Event {
		case proto.EventReceiveMessage:
			var evt proto.EventReceiveMessageData
			if err := json.Unmarshal(frame.Data, &evt); err != nil {
				log.Printf("unmarshal message: %v", err)
				continue
			}
			fmt.Printf("[chat %d] user %d: %s\n", evt.ChatID, evt.Message.SenderID, evt.Message.Content)
		case proto.EventHistory:
			var evt proto.EventHistoryData
			if err := json.Unmarshal(frame.Data, &evt); err != nil {
				log.Printf("unmarshal history: %v", err)
				continue
			}
			for _, msg := range evt.Messages {
				fmt.Printf("[chat %d] user %d: %s\n", evt.ChatID, msg.SenderID, msg.Content)
			}
		case proto.EventUsersOnline:
			var evt proto.EventUsersOnlineData
			if err := json.Unmarshal(frame.Data, &evt); err != nil {
				log.Printf("unmarshal users_online: %v", err)
				continue
			}
			fmt.Printf("-- online: %v\n", evt.UserIDs)
		case proto.EventUserTyping:
			var evt proto.EventUserTypingData
			if err := json.Unmarshal(frame.Data, &evt); err != nil {
				log.Printf("unmarshal user_typing: %v", err)
				continue
			}
			if evt.IsTyping {
				fmt.Printf("-- %s is typing...\n", evt.Username)
			}
		default:
			fmt.Printf("event=%s data=%s\n", frame.Event, frame.Data)
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, chatID int64) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			payload, err := json.Marshal(proto.SendMessageData{ChatID: chatID, Content: text})
			if err != nil {
				log.Printf("marshal msg: %v", err)
				return
			}
			if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSendMessage, Data: payload}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
