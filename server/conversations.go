// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"

	boltevents "github.com/daniprol/bolt-events"
)

// CreateConversationParams is the POST /conversations request body.
type CreateConversationParams struct {
	AgentID string `json:"agentId"`
	Title   string `json:"title,omitzero"`
}

// ListConversations returns all known conversations, most recently updated
// first.
func (tm *TaskManager) ListConversations(ctx context.Context) ([]*boltevents.Conversation, error) {
	if tm.conversations == nil {
		return nil, fmt.Errorf("conversation store not configured")
	}
	return tm.conversations.List(ctx)
}

// GetConversation returns a conversation together with its current task
// count.
func (tm *TaskManager) GetConversation(ctx context.Context, contextID string) (*boltevents.Conversation, error) {
	if tm.conversations == nil {
		return nil, fmt.Errorf("conversation store not configured")
	}
	return tm.conversations.Get(ctx, contextID)
}

// CreateConversation registers a new conversation context.
func (tm *TaskManager) CreateConversation(ctx context.Context, agentID, title string) (*boltevents.Conversation, error) {
	if tm.conversations == nil {
		return nil, fmt.Errorf("conversation store not configured")
	}
	if agentID == "" {
		agentID = "default"
	}

	now := time.Now().UTC()
	conv := &boltevents.Conversation{
		ContextID: boltevents.NewContextID(),
		AgentID:   agentID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tm.conversations.Save(ctx, conv); err != nil {
		return nil, err
	}

	tm.logger.InfoContext(ctx, "conversation created", "context_id", conv.ContextID, "agent_id", agentID)
	return conv, nil
}

// DeleteConversation removes a conversation and its task records.
func (tm *TaskManager) DeleteConversation(ctx context.Context, contextID string) error {
	if tm.conversations == nil {
		return fmt.Errorf("conversation store not configured")
	}

	tasks, err := tm.store.List(ctx, contextID, 0, 0)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := tm.store.Delete(ctx, t.ID); err != nil {
			tm.logger.WarnContext(ctx, "task cleanup failed", "task_id", t.ID, "error", err)
		}
	}

	return tm.conversations.Delete(ctx, contextID)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := s.manager.ListConversations(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if conversations == nil {
		conversations = []*boltevents.Conversation{}
	}
	s.writeJSON(w, http.StatusOK, conversations)
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var params CreateConversationParams
	if err := json.UnmarshalRead(r.Body, &params); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	conv, err := s.manager.CreateConversation(r.Context(), params.AgentID, params.Title)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusCreated, conv)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.manager.GetConversation(r.Context(), r.PathValue("contextID"))
	if err != nil {
		s.writeConversationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.DeleteConversation(r.Context(), r.PathValue("contextID")); err != nil {
		s.writeConversationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeConversationError(w http.ResponseWriter, err error) {
	var notFound boltevents.ConversationNotFoundError
	if errors.As(err, &notFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.MarshalWrite(w, v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}
