package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csms/ocpp/core"
	"csms/types"
)

func TestParseFrameRejectsShortFrame(t *testing.T) {
	_, err := ParseFrame([]interface{}{2.0, "msg-1"})
	if err == nil {
		t.Fatalf("expected an error for a two element frame")
	}
}

func TestParseFrameRejectsNonNumericType(t *testing.T) {
	_, err := ParseFrame([]interface{}{"2", "msg-1", "Heartbeat", map[string]interface{}{}})
	if err == nil {
		t.Fatalf("expected an error for a string message type")
	}
}

func TestParseFrameRejectsUnknownType(t *testing.T) {
	_, err := ParseFrame([]interface{}{5.0, "msg-1", "Heartbeat"})
	if err == nil {
		t.Fatalf("expected an error for message type 5")
	}
}

func TestParseFrameRejectsNonStringUniqueId(t *testing.T) {
	_, err := ParseFrame([]interface{}{2.0, 17.0, "Heartbeat", map[string]interface{}{}})
	if err == nil {
		t.Fatalf("expected an error for a numeric unique id")
	}
}

func TestParseFrameCall(t *testing.T) {
	payload := map[string]interface{}{"idTag": "TAG42"}
	frame, err := ParseFrame([]interface{}{2.0, "msg-1", "Authorize", payload})
	require.NoError(t, err)
	assert.Equal(t, CallTypeRequest, frame.TypeId)
	assert.Equal(t, "msg-1", frame.UniqueId)
	assert.Equal(t, "Authorize", frame.Action)
	assert.True(t, frame.HasAction())
	assert.Equal(t, payload, frame.Payload)
}

func TestParseFrameCallWithoutActionString(t *testing.T) {
	frame, err := ParseFrame([]interface{}{2.0, "msg-1", 42.0, map[string]interface{}{}})
	require.NoError(t, err)
	assert.False(t, frame.HasAction())
}

func TestParseFrameCallResult(t *testing.T) {
	payload := map[string]interface{}{"status": "Accepted"}
	frame, err := ParseFrame([]interface{}{3.0, "msg-2", payload})
	require.NoError(t, err)
	assert.Equal(t, CallTypeResult, frame.TypeId)
	assert.Equal(t, payload, frame.Payload)
}

func TestCallErrorMarshal(t *testing.T) {
	callError := CreateCallError("msg-3", ErrorCodeNotImplemented, "unsupported action: Reset")
	data, err := json.Marshal(callError)
	require.NoError(t, err)
	assert.JSONEq(t, `[4,"msg-3","NotImplemented","unsupported action: Reset",{}]`, string(data))
}

func TestCallResultMarshal(t *testing.T) {
	callResult := CreateCallResult(core.NewHeartbeatResponse(types.NewDateTime(time.Now())), "msg-4")
	data, err := json.Marshal(callResult)
	require.NoError(t, err)

	var fields []interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	require.Len(t, fields, 3)
	assert.Equal(t, 3.0, fields[0])
	assert.Equal(t, "msg-4", fields[1])
}

func TestCallRequestMarshal(t *testing.T) {
	callRequest := CreateCallRequest("Reset", map[string]string{"type": "Soft"})
	if callRequest.UniqueId == "" {
		t.Fatalf("expected a generated unique id")
	}
	data, err := json.Marshal(callRequest)
	require.NoError(t, err)

	var fields []interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	require.Len(t, fields, 4)
	assert.Equal(t, 2.0, fields[0])
	assert.Equal(t, "Reset", fields[2])
}

func TestResolveDispatch(t *testing.T) {
	handler16 := NewSystemHandler(nil, 60)
	handler201 := NewSystemHandlerV201(nil, 60)
	table16 := dispatchTable16(handler16)
	table201 := dispatchTable201(handler201)

	assert.Equal(t, len(table16), len(resolveDispatch(types.Version16, table16, table201)))
	assert.Equal(t, len(table201), len(resolveDispatch(types.Version20, table16, table201)))
	assert.Equal(t, len(table201), len(resolveDispatch(types.Version201, table16, table201)))
	assert.Nil(t, resolveDispatch("1.5", table16, table201))

	if _, ok := table16["StartTransaction"]; !ok {
		t.Fatalf("StartTransaction missing from the 1.6 table")
	}
	if _, ok := table201["TransactionEvent"]; !ok {
		t.Fatalf("TransactionEvent missing from the 2.0.1 table")
	}
}
