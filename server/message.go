package server

import (
	"encoding/json"
	"fmt"

	"csms/ocpp"
	"csms/utility"
)

type CallType int

const (
	CallTypeRequest CallType = 2
	CallTypeResult  CallType = 3
	CallTypeError   CallType = 4
)

const (
	ErrorCodeNotImplemented = "NotImplemented"
	ErrorCodeNotSupported   = "NotSupported"
	ErrorCodeProtocolError  = "ProtocolError"
	ErrorCodeInternalError  = "InternalError"
)

// Frame is a decoded OCPP-J message of any type. Action and Payload are
// populated for requests, Payload alone for results.
type Frame struct {
	TypeId   CallType
	UniqueId string
	Action   string
	Payload  interface{}
}

// ParseFrame validates the elements every frame type shares. Violations here
// leave no request id to correlate an error response with, the caller is
// expected to drop the frame.
func ParseFrame(data []interface{}) (*Frame, error) {
	if len(data) < 3 {
		return nil, utility.Err("incompatible frame structure; expected at least 3 elements")
	}
	rawTypeId, ok := data[0].(float64)
	if !ok {
		return nil, utility.Err("invalid message type in frame")
	}
	typeId := CallType(rawTypeId)
	if typeId != CallTypeRequest && typeId != CallTypeResult && typeId != CallTypeError {
		return nil, utility.Err(fmt.Sprintf("unknown message type id: %v", rawTypeId))
	}
	uniqueId, ok := data[1].(string)
	if !ok {
		return nil, utility.Err("invalid message unique id in frame")
	}
	frame := Frame{
		TypeId:   typeId,
		UniqueId: uniqueId,
	}
	switch typeId {
	case CallTypeRequest:
		if len(data) >= 4 {
			frame.Payload = data[3]
		}
		if action, ok := data[2].(string); ok {
			frame.Action = action
		}
	case CallTypeResult:
		frame.Payload = data[2]
	}
	return &frame, nil
}

// HasAction reports whether the action element was a string. A request frame
// without one is answered with a protocol error.
func (f *Frame) HasAction() bool {
	return f.Action != ""
}

// CallResult An OCPP-J CallResult message, containing an OCPP Response.
type CallResult struct {
	TypeId   CallType
	UniqueId string
	Payload  ocpp.Response
}

func (callResult *CallResult) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 3)
	fields[0] = int(callResult.TypeId)
	fields[1] = callResult.UniqueId
	fields[2] = callResult.Payload
	return json.Marshal(fields)
}

func CreateCallResult(confirmation ocpp.Response, uniqueId string) *CallResult {
	return &CallResult{
		TypeId:   CallTypeResult,
		UniqueId: uniqueId,
		Payload:  confirmation,
	}
}

// CallError An OCPP-J CallError message, sent in place of a CallResult when
// the request could not be served.
type CallError struct {
	UniqueId    string
	ErrorCode   string
	Description string
}

func (callError *CallError) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 5)
	fields[0] = int(CallTypeError)
	fields[1] = callError.UniqueId
	fields[2] = callError.ErrorCode
	fields[3] = callError.Description
	fields[4] = map[string]interface{}{}
	return json.Marshal(fields)
}

func CreateCallError(uniqueId, errorCode, description string) *CallError {
	return &CallError{
		UniqueId:    uniqueId,
		ErrorCode:   errorCode,
		Description: description,
	}
}

// CallRequest An OCPP-J Call message originated by the backend.
type CallRequest struct {
	TypeId   CallType
	UniqueId string
	Action   string
	Payload  interface{}
}

func (callRequest *CallRequest) MarshalJSON() ([]byte, error) {
	fields := make([]interface{}, 4)
	fields[0] = int(callRequest.TypeId)
	fields[1] = callRequest.UniqueId
	fields[2] = callRequest.Action
	fields[3] = callRequest.Payload
	return json.Marshal(fields)
}

func CreateCallRequest(action string, payload interface{}) *CallRequest {
	return &CallRequest{
		TypeId:   CallTypeRequest,
		UniqueId: utility.NewUUID(),
		Action:   action,
		Payload:  payload,
	}
}
