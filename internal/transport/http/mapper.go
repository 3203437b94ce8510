package http

import (
	"encoding/json"

	"github.com/tandemtalk/server/internal/core"
	"github.com/tandemtalk/server/internal/proto"
	"github.com/tandemtalk/server/internal/store"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error, error) {
	switch inbound.Type {
	case proto.InboundTypeJoinChat:
		var join proto.JoinChatData
		if err := json.Unmarshal(inbound.Data, &join); err != nil {
			return nil, nil, err
		}
		if join.ChatID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "chat_id is required"}, nil
		}
		return &core.Command{
			Kind:   core.CommandJoinChat,
			ChatID: join.ChatID,
		}, nil, nil
	case proto.InboundTypeLeaveChat:
		var leave proto.JoinChatData
		if err := json.Unmarshal(inbound.Data, &leave); err != nil {
			return nil, nil, err
		}
		if leave.ChatID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "chat_id is required"}, nil
		}
		return &core.Command{
			Kind:   core.CommandLeaveChat,
			ChatID: leave.ChatID,
		}, nil, nil
	case proto.InboundTypeSendMessage:
		var msg proto.SendMessageData
		if err := json.Unmarshal(inbound.Data, &msg); err != nil {
			return nil, nil, err
		}
		if msg.ChatID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "chat_id is required"}, nil
		}
		return &core.Command{
			Kind:   core.CommandSendMessage,
			ChatID: msg.ChatID,
			Body:   msg.Content,
			Ref:    msg.Ref,
		}, nil, nil
	case proto.InboundTypeTyping:
		var typing proto.TypingData
		if err := json.Unmarshal(inbound.Data, &typing); err != nil {
			return nil, nil, err
		}
		if typing.ChatID <= 0 {
			return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "chat_id is required"}, nil
		}
		return &core.Command{
			Kind:     core.CommandTyping,
			ChatID:   typing.ChatID,
			IsTyping: typing.IsTyping,
		}, nil, nil
	default:
		return nil, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}, nil
	}
}

func messagePayload(msg *store.Message) proto.MessagePayload {
	return proto.MessagePayload{
		ID:       msg.ID,
		ChatID:   msg.ChatID,
		SenderID: msg.SenderID,
		Content:  msg.Body,
		Read:     msg.Read,
		TS:       msg.CreatedAt.Unix(),
	}
}

func callEventData(ev *core.CallEvent) proto.EventCallData {
	data := proto.EventCallData{
		CallID:       ev.CallID,
		ChatID:       ev.ChatID,
		FromUserID:   ev.FromUserID,
		FromUsername: ev.FromUsername,
		Reason:       ev.Reason,
		TS:           ev.CreatedAt,
	}
	if ev.JoinInfo != nil {
		data.JoinURL = ev.JoinInfo.URL
		data.JoinToken = ev.JoinInfo.Token
		data.JoinRoom = ev.JoinInfo.RoomName
		data.JoinIdentity = ev.JoinInfo.Identity
	}
	return data
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventReceiveMessage:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventReceiveMessage,
			Data: proto.EventReceiveMessageData{
				ChatID:  event.ChatID,
				Message: messagePayload(event.Message),
				Ref:     event.Ref,
			},
		}
	case core.EventHistory:
		messages := make([]proto.MessagePayload, 0, len(event.Messages))
		for _, msg := range event.Messages {
			messages = append(messages, messagePayload(msg))
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventHistory,
			Data: proto.EventHistoryData{
				ChatID:   event.ChatID,
				Messages: messages,
			},
		}
	case core.EventUsersOnline:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUsersOnline,
			Data: proto.EventUsersOnlineData{
				UserIDs: event.UserIDs,
			},
		}
	case core.EventUserTyping:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUserTyping,
			Data: proto.EventUserTypingData{
				ChatID:   event.ChatID,
				UserID:   event.UserID,
				Username: event.Username,
				IsTyping: event.IsTyping,
			},
		}
	case core.EventChatPreview:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUpdateChatPreview,
			Data: proto.EventChatPreviewData{
				ChatID:      event.ChatID,
				LastMessage: event.Preview.Body,
				SenderID:    event.Preview.SenderID,
				TS:          event.Preview.SentAt.Unix(),
			},
		}
	case core.EventChatCreated:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventChatCreated,
			Data: proto.EventChatCreatedData{
				ChatID: event.ChatID,
			},
		}
	case core.EventCallIncoming:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventCallIncoming,
			Data:  callEventData(event.Call),
		}
	case core.EventCallAccepted:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventCallAccepted,
			Data:  callEventData(event.Call),
		}
	case core.EventCallRejected:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventCallRejected,
			Data:  callEventData(event.Call),
		}
	case core.EventCallEnded:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventCallEnded,
			Data:  callEventData(event.Call),
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{
			Type:  proto.OutboundTypeError,
			Error: &proto.Error{Code: event.Error.Code, Msg: event.Error.Message},
		}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
