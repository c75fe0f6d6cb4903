// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"net/http"

	"github.com/go-json-experiment/json"

	boltevents "github.com/daniprol/bolt-events"
	"github.com/daniprol/bolt-events/server/task"
)

// handleRPC decodes the JSON-RPC envelope and routes to the method handler.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req boltevents.JSONRPCRequest
	if err := json.UnmarshalRead(r.Body, &req); err != nil {
		s.writeError(w, nil, boltevents.NewJSONParseError())
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeError(w, req.ID, boltevents.NewInvalidRequestError())
		return
	}

	ctx := r.Context()
	switch req.Method {
	case boltevents.MethodTasksSend, boltevents.MethodMessageSend:
		s.handleTasksSend(w, r, req)
	case boltevents.MethodTasksSendSubscribe, boltevents.MethodMessageStream:
		s.handleTasksSendSubscribe(w, r, req)
	case boltevents.MethodTasksResubscribe:
		s.handleTasksResubscribe(w, r, req)
	case boltevents.MethodTasksGet:
		s.handleTasksGet(w, r, req)
	case boltevents.MethodTasksCancel:
		s.handleTasksCancel(w, r, req)
	default:
		s.logger.WarnContext(ctx, "unknown rpc method", "method", req.Method)
		s.writeError(w, req.ID, boltevents.NewMethodNotFoundError(req.Method))
	}
}

func (s *Server) handleTasksSend(w http.ResponseWriter, r *http.Request, req boltevents.JSONRPCRequest) {
	var params boltevents.TaskSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(w, req.ID, boltevents.NewInvalidParamsError(""))
		return
	}

	t, err := s.manager.SendTask(r.Context(), params)
	if err != nil {
		s.writeError(w, req.ID, s.mapError(err))
		return
	}
	s.writeResult(w, req.ID, t)
}

func (s *Server) handleTasksSendSubscribe(w http.ResponseWriter, r *http.Request, req boltevents.JSONRPCRequest) {
	var params boltevents.TaskSendParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.writeError(w, req.ID, boltevents.NewInvalidParamsError(""))
		return
	}

	t, err := s.manager.SendTaskSubscribe(r.Context(), params)
	if err != nil {
		s.writeError(w, req.ID, s.mapError(err))
		return
	}
	s.writeResult(w, req.ID, boltevents.TaskSubscribeResult{
		Task:      t,
		StreamURL: s.streamURL(t.ID),
	})
}

func (s *Server) handleTasksResubscribe(w http.ResponseWriter, r *http.Request, req boltevents.JSONRPCRequest) {
	var params boltevents.TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		s.writeError(w, req.ID, boltevents.NewInvalidParamsError(""))
		return
	}

	t, err := s.manager.Resubscribe(r.Context(), params.ID)
	if err != nil {
		s.writeError(w, req.ID, s.mapError(err))
		return
	}
	s.writeResult(w, req.ID, boltevents.TaskSubscribeResult{
		Task:      t,
		StreamURL: s.streamURL(t.ID),
	})
}

func (s *Server) handleTasksGet(w http.ResponseWriter, r *http.Request, req boltevents.JSONRPCRequest) {
	var params boltevents.TaskGetParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		s.writeError(w, req.ID, boltevents.NewInvalidParamsError(""))
		return
	}

	t, err := s.manager.GetTask(r.Context(), params.ID, params.HistoryLength)
	if err != nil {
		s.writeError(w, req.ID, s.mapError(err))
		return
	}
	s.writeResult(w, req.ID, t)
}

func (s *Server) handleTasksCancel(w http.ResponseWriter, r *http.Request, req boltevents.JSONRPCRequest) {
	var params boltevents.TaskIDParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.ID == "" {
		s.writeError(w, req.ID, boltevents.NewInvalidParamsError(""))
		return
	}

	t, err := s.manager.CancelTask(r.Context(), params.ID)
	if err != nil {
		s.writeError(w, req.ID, s.mapError(err))
		return
	}
	s.writeResult(w, req.ID, t)
}

// mapError translates domain errors into protocol error objects.
func (s *Server) mapError(err error) *boltevents.JSONRPCError {
	var notFound boltevents.TaskNotFoundError
	if errors.As(err, &notFound) {
		return boltevents.NewTaskNotFoundError(notFound.TaskID)
	}

	var notCancelable boltevents.TaskNotCancelableError
	if errors.As(err, &notCancelable) {
		return boltevents.NewTaskNotCancelableError(notCancelable.Error())
	}

	var notUpdatable task.TaskNotUpdatableError
	if errors.As(err, &notUpdatable) {
		return boltevents.NewInvalidParamsError(notUpdatable.Error())
	}

	var validation task.TaskValidationError
	if errors.As(err, &validation) {
		return boltevents.NewInvalidParamsError(validation.Error())
	}

	return boltevents.NewInternalError()
}

func (s *Server) writeResult(w http.ResponseWriter, id, result any) {
	s.writeResponse(w, boltevents.JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	})
}

func (s *Server) writeError(w http.ResponseWriter, id any, rpcErr *boltevents.JSONRPCError) {
	s.writeResponse(w, boltevents.JSONRPCResponse{
		JSONRPC: "2.0",
		Error:   rpcErr,
		ID:      id,
	})
}

func (s *Server) writeResponse(w http.ResponseWriter, resp boltevents.JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.MarshalWrite(w, resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
