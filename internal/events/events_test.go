package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilPublisherIsInert(t *testing.T) {
	var p *Publisher

	assert.NotPanics(t, func() {
		p.Emit(Event{Type: TypeMessage, ClientID: 1, Room: "general"})
		p.Close()
	})
	assert.False(t, p.IsConnected())
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "chat.events.connected", Subject(TypeConnected))
	assert.Equal(t, "chat.events.room_created", Subject(TypeRoomCreated))
}

func TestEventSerialization(t *testing.T) {
	e := Event{
		ID:         "abc",
		Type:       TypeJoined,
		ServerID:   "chat-1",
		ClientID:   7,
		ClientName: "alice",
		Room:       "devs",
	}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "joined", got["type"])
	assert.Equal(t, "alice", got["client_name"])
	assert.Equal(t, "devs", got["room"])
	assert.NotContains(t, got, "detail", "empty optional fields are omitted")
}
