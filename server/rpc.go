package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/pithecene-io/docbroker/types"
)

// JSON-RPC 2.0 error codes. Broker failures use the implementation-defined
// server error range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602

	CodeEngineError  = -32000
	CodeAccessDenied = -32001
	CodeNoIdentifier = -32002
	CodeNoData       = -32003
	CodeNoConnection = -32004
)

// Method names.
const (
	MethodGetFile = "get_file"
	MethodConvert = "convert"
	MethodUpload  = "upload"
	MethodJoin    = "join"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc" validate:"eq=2.0"`
	Method  string          `json:"method" validate:"required"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type rpcError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

type credentialParams struct {
	Username string `json:"username" validate:"max=256"`
	Password string `json:"password" validate:"max=1024"`
}

func (p credentialParams) credentials() types.Credentials {
	return types.Credentials{Username: p.Username, Password: p.Password}
}

// rpcIdentifier is an identifier param. Clients may send the token as a
// JSON string or, as returned by older brokers, a JSON integer; integers
// are kept in decimal without passing through float64.
type rpcIdentifier string

func (id *rpcIdentifier) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*id = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = rpcIdentifier(s)
		return nil
	}
	n, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("identifier must be a string or a non-negative integer, got %s", b)
	}
	*id = rpcIdentifier(strconv.FormatUint(n, 10))
	return nil
}

func (id rpcIdentifier) identifier() types.Identifier {
	return types.Identifier(id)
}

type getFileParams struct {
	credentialParams
	Identifier rpcIdentifier `json:"identifier" validate:"max=128"`
}

type convertParams struct {
	credentialParams
	Data       string `json:"data"`
	Identifier rpcIdentifier `json:"identifier" validate:"max=128"`
	InFormat   string `json:"in_format" validate:"omitempty,alphanum,max=16"`
	OutFormat  string `json:"out_format" validate:"omitempty,alphanum,max=16"`
}

type uploadParams struct {
	credentialParams
	Data       string `json:"data"`
	IsLast     bool   `json:"is_last"`
	Identifier rpcIdentifier `json:"identifier" validate:"max=128"`
}

type joinParams struct {
	credentialParams
	Identifiers []rpcIdentifier `json:"identifiers" validate:"max=100000,dive,required,max=128"`
	InFormat    string          `json:"in_format" validate:"omitempty,alphanum,max=16"`
	OutFormat   string          `json:"out_format" validate:"omitempty,alphanum,max=16"`
}

// brokerError maps a broker failure to its JSON-RPC error.
func brokerError(err error) *rpcError {
	name := types.ErrorName(err)
	code := CodeEngineError
	switch types.ErrorKind(err) {
	case types.ErrAccessDenied:
		code = CodeAccessDenied
	case types.ErrNoIdentifier:
		code = CodeNoIdentifier
	case types.ErrNoData:
		code = CodeNoData
	case types.ErrNoConnection:
		code = CodeNoConnection
	}
	msg := err.Error()
	// Credentials are never echoed; access denial carries no detail.
	if errors.Is(err, types.ErrAccessDenied) {
		msg = types.ErrAccessDenied.Error()
	}
	return &rpcError{Code: code, Message: msg, Data: map[string]any{"name": name}}
}
