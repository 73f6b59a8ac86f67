package ws

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vedran77/consult/internal/domain"
	"github.com/vedran77/consult/internal/presence"
)

// HubNotifier implements service.Notifier and presence.Broadcaster using
// the WebSocket Hub.
type HubNotifier struct {
	hub *Hub
}

func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub}
}

func (n *HubNotifier) NotifyMessage(msg *domain.Message) {
	evt, err := NewEvent(EventTypeMessage, &msg.ChannelID, MessagePayload{Message: *msg})
	if err != nil {
		logrus.WithError(err).Error("ws notifier: marshal message")
		return
	}
	n.hub.BroadcastToChannel(msg.ChannelID, evt)
}

func (n *HubNotifier) NotifyRead(channelID uuid.UUID, reader domain.Role, ids []domain.MessageID) {
	evt, err := NewEvent(EventTypeRead, &channelID, ReadPayload{Reader: reader, MessageIDs: ids})
	if err != nil {
		logrus.WithError(err).Error("ws notifier: marshal read receipt")
		return
	}
	n.hub.BroadcastToChannel(channelID, evt)
}

func (n *HubNotifier) BroadcastPresence(pe presence.Event) {
	var eventType string
	switch pe.Kind {
	case presence.EventUserJoined:
		eventType = EventTypeUserJoined
	case presence.EventUserLeft:
		eventType = EventTypeUserLeft
	case presence.EventTyping:
		eventType = EventTypeTyping
	default:
		return
	}

	evt, err := NewEvent(eventType, &pe.ChannelID, PresencePayload{User: pe.Subject, Users: pe.Users})
	if err != nil {
		logrus.WithError(err).Error("ws notifier: marshal presence")
		return
	}
	n.hub.BroadcastToChannel(pe.ChannelID, evt)
}
