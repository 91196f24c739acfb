// File: transport/wsrpc/wire.go
// Package wsrpc implements the WebSocket RPC transport adapter (§4.5):
// framed messages carrying request ids, encoded as JSON over text
// frames or MessagePack over binary frames.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package wsrpc

import (
	"encoding/json"
	"errors"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jhaynie/appc-daemon/dispatch"
)

// encoding identifies which codec a given inbound frame (and hence its
// matching outbound frames) negotiated, per §4.5 point 5.
type encoding int

const (
	encodingJSON encoding = iota
	encodingMsgpack
)

// wireRequest is the inbound message shape (§6).
type wireRequest struct {
	Version string `json:"version" msgpack:"version"`
	ID      string `json:"id" msgpack:"id"`
	Path    string `json:"path" msgpack:"path"`
	Data    any    `json:"data" msgpack:"data"`
	Type    string `json:"type,omitempty" msgpack:"type,omitempty"`
}

// wireResponse is the outbound message shape (§6).
type wireResponse struct {
	ID         string `json:"id" msgpack:"id"`
	Status     int    `json:"status" msgpack:"status"`
	StatusCode string `json:"statusCode,omitempty" msgpack:"statusCode,omitempty"`
	Message    any    `json:"message" msgpack:"message"`
}

var errEmptyPath = errors.New("wsrpc: request path is empty")

func decodeRequest(enc encoding, raw []byte) (*wireRequest, error) {
	var req wireRequest
	var err error
	switch enc {
	case encodingJSON:
		err = json.Unmarshal(raw, &req)
	case encodingMsgpack:
		err = msgpack.Unmarshal(raw, &req)
	}
	if err != nil {
		return nil, err
	}
	if req.Path == "" {
		return nil, errEmptyPath
	}
	return &req, nil
}

func encodeResponse(enc encoding, resp wireResponse) ([]byte, error) {
	switch enc {
	case encodingMsgpack:
		return msgpack.Marshal(resp)
	default:
		return json.Marshal(resp)
	}
}

// requestType maps the wire "type" string to dispatch.RequestType,
// defaulting to TypeCall per §3.
func requestType(s string) dispatch.RequestType {
	switch dispatch.RequestType(s) {
	case dispatch.TypeSubscribe:
		return dispatch.TypeSubscribe
	case dispatch.TypeUnsubscribe:
		return dispatch.TypeUnsubscribe
	default:
		return dispatch.TypeCall
	}
}
