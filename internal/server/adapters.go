// internal/server/adapters.go
package server

import (
	"github.com/markb/linglite/internal/chat"
	"github.com/markb/linglite/internal/friends"
	"github.com/markb/linglite/internal/realtime"
)

// Thin adapters bridging the realtime core's collaborator interfaces to the
// persistent services. The realtime package stays ignorant of the chat and
// friends packages; these are the only glue between them.

type roomAuthorizer struct {
	chats *chat.Service
}

func (a roomAuthorizer) CanAccessRoom(userID, roomID string) (bool, error) {
	return a.chats.IsParticipant(userID, roomID)
}

type messageStore struct {
	chats *chat.Service
}

func (m messageStore) SaveMessage(roomID, senderID, body, attachmentURL string) (*realtime.StoredMessage, error) {
	msg, err := m.chats.SaveMessage(roomID, senderID, body, attachmentURL)
	if err != nil {
		return nil, err
	}
	return &realtime.StoredMessage{ID: msg.ID, CreatedAt: msg.CreatedAt}, nil
}

type contactResolver struct {
	friends *friends.Service
}

func (c contactResolver) ContactsOf(userID string) ([]string, error) {
	return c.friends.FriendIDs(userID)
}

type callArchiver struct {
	chats *chat.Service
}

func (a callArchiver) ArchiveCall(call *realtime.Call) error {
	return a.chats.LogCall(&chat.CallLog{
		ID:             call.ID,
		ConversationID: call.RoomID,
		CallerID:       call.CallerID,
		CalleeID:       call.CalleeID,
		State:          string(call.State),
		Reason:         string(call.Reason),
		CreatedAt:      call.CreatedAt,
		ConnectedAt:    call.ConnectedAt,
		EndedAt:        call.EndedAt,
	})
}
