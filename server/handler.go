package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pithecene-io/docbroker/types"
)

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	var req rpcRequest
	err := json.NewDecoder(body).Decode(&req)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse(nil, CodeInvalidRequest, "request body too large"))
			return
		}
		writeJSON(w, http.StatusOK, errorResponse(nil, CodeParseError, "parse error: "+err.Error()))
		return
	}
	if err := validatorInstance().Struct(&req); err != nil {
		writeJSON(w, http.StatusOK, errorResponse(req.ID, CodeInvalidRequest, "invalid request: "+validationMessage(err)))
		return
	}

	result, rpcErr := s.dispatch(r.Context(), req.Method, req.Params)

	// Notifications get no response body.
	if len(req.ID) == 0 || bytes.Equal(req.ID, []byte("null")) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else if resp.Result, err = json.Marshal(result); err != nil {
		resp.Error = &rpcError{Code: CodeEngineError, Message: "encode result: " + err.Error()}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) dispatch(ctx context.Context, method string, raw json.RawMessage) (any, *rpcError) {
	switch method {
	case MethodGetFile:
		var p getFileParams
		if e := decodeParams(raw, &p); e != nil {
			return nil, e
		}
		out, err := s.broker.GetFile(ctx, p.credentials(), p.Identifier.identifier())
		return encodeResult(out, err)

	case MethodConvert:
		var p convertParams
		if e := decodeParams(raw, &p); e != nil {
			return nil, e
		}
		out, err := s.broker.Convert(ctx, &types.ConversionRequest{
			Data:        p.Data,
			Identifier:  p.Identifier.identifier(),
			InFormat:    p.InFormat,
			OutFormat:   p.OutFormat,
			Credentials: p.credentials(),
		})
		return encodeResult(out, err)

	case MethodUpload:
		var p uploadParams
		if e := decodeParams(raw, &p); e != nil {
			return nil, e
		}
		res, err := s.broker.Upload(ctx, &types.UploadRequest{
			Data:        p.Data,
			IsLast:      p.IsLast,
			Identifier:  p.Identifier.identifier(),
			Credentials: p.credentials(),
		})
		if err != nil {
			return nil, brokerError(err)
		}
		return res, nil

	case MethodJoin:
		var p joinParams
		if e := decodeParams(raw, &p); e != nil {
			return nil, e
		}
		ids := make([]types.Identifier, len(p.Identifiers))
		for i, id := range p.Identifiers {
			ids[i] = id.identifier()
		}
		out, err := s.broker.Join(ctx, &types.JoinRequest{
			Identifiers: ids,
			InFormat:    p.InFormat,
			OutFormat:   p.OutFormat,
			Credentials: p.credentials(),
		})
		return encodeResult(out, err)

	default:
		return nil, &rpcError{Code: CodeMethodNotFound, Message: "method not found: " + method}
	}
}

// decodeParams accepts named params (an object) only.
func decodeParams(raw json.RawMessage, dst any) *rpcError {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &rpcError{Code: CodeInvalidParams, Message: "invalid params: " + err.Error()}
	}
	if err := validatorInstance().Struct(dst); err != nil {
		return &rpcError{Code: CodeInvalidParams, Message: "invalid params: " + validationMessage(err)}
	}
	return nil
}

// encodeResult base64-encodes document results.
func encodeResult(out []byte, err error) (any, *rpcError) {
	if err != nil {
		return nil, brokerError(err)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

func errorResponse(id json.RawMessage, code int, msg string) rpcResponse {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}}
}
