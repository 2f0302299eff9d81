package broker

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePayload(t *testing.T) {
	assert.JSONEq(t, `{"message":"hi","timestamp":1}`, string(EncodePayload([]byte(`{"message":"hi","timestamp":1}`))))
	assert.Equal(t, `"not json"`, string(EncodePayload([]byte("not json"))))
}

func TestDataFrameFitsOverhead(t *testing.T) {
	text := strings.Repeat("<&\"\n日", 4096)
	data, err := json.Marshal(map[string]any{"message": text, "timestamp": 1.7e12})
	require.NoError(t, err)

	f := Frame{Type: FrameData, Conn: "dc_" + uuid.NewString(), Payload: EncodePayload(data)}
	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), len(data)+FrameOverhead)
}

func TestFrameErrDefaultsToServerError(t *testing.T) {
	var f Frame
	require.NoError(t, json.Unmarshal([]byte(`{"type":"error","error":"boom"}`), &f))
	err := f.Err()
	assert.Equal(t, ErrServer, err.Type)
	assert.Equal(t, "boom", err.Error())

	f = ErrorFrame("dc_1", Errorf(ErrPeerUnavailable, "could not connect to peer %s", "9"))
	assert.Equal(t, FrameError, f.Type)
	assert.Equal(t, "dc_1", f.Conn)
	assert.Equal(t, ErrPeerUnavailable, f.Err().Type)
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "conn-data", ConnData.String())
	assert.Equal(t, "EventKind(99)", EventKind(99).String())
}
