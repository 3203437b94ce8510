package core

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func benchmarkFanout(b *testing.B, devices int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fs := newFakeStore(testChat(1, 1, 2))
	hub := NewHub(fs, nil, Options{PersistTimeout: time.Second})
	go hub.Run(ctx)

	sender := NewClient("sender", 1, "alice", 16)
	hub.RegisterClient(sender)
	sender.Commands <- &Command{Kind: CommandJoinChat, ChatID: 1}

	// Recipient user with many devices, all subscribed to the chat.
	clients := make([]*Client, 0, devices)
	for i := 0; i < devices; i++ {
		c := NewClient(fmt.Sprintf("recv-%d", i), 2, "bob", 16)
		hub.RegisterClient(c)
		c.Commands <- &Command{Kind: CommandJoinChat, ChatID: 1}
		clients = append(clients, c)
	}

	// Drain events for all but the first recipient to avoid backpressure.
	target := clients[0]
	for _, c := range clients[1:] {
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}
	go func() {
		for range sender.Events {
		}
	}()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sender.Commands <- &Command{Kind: CommandSendMessage, ChatID: 1, Body: "payload"}
		for {
			ev := <-target.Events
			if ev.Kind == EventReceiveMessage {
				break
			}
		}
	}
}

func BenchmarkChatFanout_10(b *testing.B)  { benchmarkFanout(b, 10) }
func BenchmarkChatFanout_100(b *testing.B) { benchmarkFanout(b, 100) }
func BenchmarkChatFanout_500(b *testing.B) { benchmarkFanout(b, 500) }
