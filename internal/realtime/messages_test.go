package realtime

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConversationChannel(t *testing.T) {
	assert.Equal(t, "conversation-abc123", ConversationChannel("abc123"))
}

func TestNoErrOK(t *testing.T) {
	result := NoErrOK(1, map[string]any{"testkey": "testvalue"})

	assert.Equal(t, 1, result.Id, "expected id to match")
	assert.NotNil(t, result.Response, "expected response to be set")
	assert.Equal(t, http.StatusOK, result.Response.ResponseCode, "expected response code to be 200")
	assert.Empty(t, result.Response.Error, "expected no error string")
	assert.Equal(t, map[string]any{"testkey": "testvalue"}, result.Response.Data, "expected data to match")
}

func TestErrorResponses(t *testing.T) {
	tcases := []struct {
		name         string
		msg          *ServerMessage
		expectedCode int
		expectedErr  string
	}{
		{
			name:         "channel forbidden",
			msg:          ErrChannelForbidden(1),
			expectedCode: http.StatusForbidden,
			expectedErr:  "channel forbidden",
		},
		{
			name:         "channel not found",
			msg:          ErrChannelNotFound(2),
			expectedCode: http.StatusNotFound,
			expectedErr:  "channel not found",
		},
		{
			name:         "internal error",
			msg:          ErrInternalError(3),
			expectedCode: http.StatusInternalServerError,
			expectedErr:  "internal server error",
		},
		{
			name:         "service unavailable",
			msg:          ErrServiceUnavailable(4),
			expectedCode: http.StatusServiceUnavailable,
			expectedErr:  "service unavailable",
		},
		{
			name:         "invalid message",
			msg:          ErrInvalidMessage(5),
			expectedCode: http.StatusBadRequest,
			expectedErr:  "invalid message format",
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotNil(t, tc.msg.Response, "expected response to be set")
			assert.Equal(t, tc.expectedCode, tc.msg.Response.ResponseCode, "expected response code to match")
			assert.Equal(t, tc.expectedErr, tc.msg.Response.Error, "expected error string to match")
			assert.False(t, tc.msg.Timestamp.IsZero(), "expected timestamp to be set")
		})
	}

	t.Run("invalid message without id", func(t *testing.T) {
		msg := ErrInvalidMessage(-1)
		assert.Equal(t, 0, msg.Id, "expected no id on the response")
	})
}

func TestClientMessage_Unmarshal(t *testing.T) {
	raw := `{"id":3,"subscribe":{"channel":"presence-messenger"}}`

	var msg ClientMessage
	err := json.Unmarshal([]byte(raw), &msg)
	assert.NoError(t, err, "expected message to parse")
	assert.Equal(t, 3, msg.Id)
	assert.NotNil(t, msg.Subscribe, "expected subscribe payload")
	assert.Nil(t, msg.Unsubscribe, "expected no unsubscribe payload")
	assert.Equal(t, PresenceChannel, msg.Subscribe.Channel)
}

func TestNow(t *testing.T) {
	now := Now()
	assert.Equal(t, time.UTC, now.Location(), "expected UTC timestamps")
	assert.Equal(t, now, now.Round(time.Millisecond), "expected millisecond precision")
}
