package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"messenger/internal/database"
	"messenger/internal/stats"
	"messenger/internal/testutil"
	"messenger/internal/types"
)

func TestNewClient(t *testing.T) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return(nil).Times(4)

	hub, err := NewHub(testutil.TestLogger(t), &database.MockMessengerRepository{}, su)
	assert.NoError(t, err)

	user := types.User{Id: 1, EmailAddress: "test@example.com"}
	c := NewClient(user, nil, hub, testutil.TestLogger(t))

	assert.Equal(t, user, c.user, "expected user to be set")
	assert.Equal(t, hub, c.hub, "expected hub to be set")
	assert.NotEmpty(t, c.sessionId, "expected a session id to be assigned")
	assert.NotNil(t, c.send, "expected send channel to be initialized")
	assert.NotNil(t, c.channels, "expected channels map to be initialized")
	assert.NotNil(t, c.stop, "expected stop channel to be initialized")

	other := NewClient(user, nil, hub, testutil.TestLogger(t))
	assert.NotEqual(t, c.sessionId, other.sessionId, "expected each connection to get its own session id")
}

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{} // Pre-fill the send channel to simulate a full channel
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_serializeMessage(t *testing.T) {
	message := &ServerMessage{
		BaseMessage: BaseMessage{
			Id:        1,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: 200,
			Data:         "test data",
		},
	}

	// Ensure the timestamp is in the expected format
	expected := `{"id":1,"timestamp":"` + message.Timestamp.Format(time.RFC3339Nano) +
		`","response":{"response_code":200,"data":"test data"}}`

	bytes, err := serializeMessage(message)
	assert.NoError(t, err, "expected no error during serialization")
	assert.Equal(t, expected, string(bytes), "expected serialized message to match the expected format")
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()

	select {
	case <-c.stop:
		// Channel is closed as expected
	default:
		t.Error("expected stop channel to be closed")
	}
}

func Test_forward(t *testing.T) {
	t.Run("successful forward", func(t *testing.T) {
		c := &Client{
			log:  testutil.TestLogger(t),
			send: make(chan *ServerMessage, 1),
		}

		ch := make(chan *ClientMessage, 1)
		msg := &ClientMessage{
			BaseMessage: BaseMessage{Id: 1, Timestamp: Now()},
			Subscribe:   &Subscribe{Channel: PresenceChannel},
			client:      c,
		}

		c.forward(ch, msg)

		select {
		case got := <-ch:
			assert.Equal(t, msg, got, "expected message to be forwarded to the hub")
		default:
			t.Error("expected message to be forwarded, but none was sent")
		}
	})

	t.Run("hub channel full", func(t *testing.T) {
		c := &Client{
			log:  testutil.TestLogger(t),
			send: make(chan *ServerMessage, 1),
		}

		ch := make(chan *ClientMessage, 1)
		ch <- &ClientMessage{} // Pre-fill the channel to simulate a busy hub

		msg := &ClientMessage{
			BaseMessage: BaseMessage{Id: 9, Timestamp: Now()},
			Subscribe:   &Subscribe{Channel: PresenceChannel},
			client:      c,
		}

		c.forward(ch, msg)

		select {
		case resp := <-c.send:
			assert.NotNil(t, resp.Response, "expected response to be non-nil")
			assert.Equal(t, 9, resp.Id, "expected response id to match request id")
			assert.Equal(t, 503, resp.Response.ResponseCode, "expected response code to be 503")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})
}

func Test_addChannel_delChannel_channelList(t *testing.T) {
	c := &Client{
		channels: make(map[string]struct{}),
	}

	c.addChannel(PresenceChannel)
	c.addChannel("conversation-abc123")

	channels := c.channelList()
	assert.Len(t, channels, 2, "expected 2 channels after adding")
	assert.Contains(t, channels, PresenceChannel)
	assert.Contains(t, channels, "conversation-abc123")

	c.delChannel(PresenceChannel)
	channels = c.channelList()
	assert.Len(t, channels, 1, "expected 1 channel after deleting")
	assert.NotContains(t, channels, PresenceChannel)
}
