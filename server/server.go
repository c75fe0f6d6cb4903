// Copyright 2025 The Bolt Events Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the task lifecycle over JSON-RPC and Server-Sent
// Events, backed by the event log in package stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"
)

// AgentCapabilities advertises which optional surfaces the agent serves.
type AgentCapabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

// AgentCard is the metadata document served at the well-known card URL.
type AgentCard struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitzero"`
	URL          string            `json:"url"`
	Version      string            `json:"version"`
	Capabilities AgentCapabilities `json:"capabilities"`
}

// Server is the HTTP front of the task system.
type Server struct {
	manager *TaskManager
	mux     *http.ServeMux
	card    *AgentCard
	logger  *slog.Logger

	httpServer *http.Server
}

// Config holds configuration for the Server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// AgentCard describes this agent to callers.
	AgentCard *AgentCard
	// TaskManager drives the task lifecycle.
	TaskManager *TaskManager
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// NewServer creates a Server instance with the provided configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AgentCard == nil {
		return nil, fmt.Errorf("agent card is required")
	}
	if cfg.TaskManager == nil {
		return nil, fmt.Errorf("task manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		manager: cfg.TaskManager,
		mux:     http.NewServeMux(),
		card:    cfg.AgentCard,
		logger:  cfg.Logger,
	}
	s.registerHandlers()

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerHandlers() {
	s.mux.HandleFunc("GET /.well-known/agent-card.json", s.handleAgentCard)
	s.mux.HandleFunc("GET /card", s.handleAgentCard)

	s.mux.HandleFunc("POST /rpc", s.handleRPC)
	s.mux.HandleFunc("GET /rpc/{taskID}/stream", s.handleStream)

	s.mux.HandleFunc("GET /conversations", s.handleListConversations)
	s.mux.HandleFunc("POST /conversations", s.handleCreateConversation)
	s.mux.HandleFunc("GET /conversations/{contextID}", s.handleGetConversation)
	s.mux.HandleFunc("DELETE /conversations/{contextID}", s.handleDeleteConversation)
}

// Start runs the HTTP server until the context is canceled or the listener
// fails.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.WithoutCancel(ctx))
	case err := <-errCh:
		return err
	}
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	s.logger.InfoContext(ctx, "server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// streamURL builds the SSE URL clients attach to for a task.
func (s *Server) streamURL(taskID string) string {
	return "/rpc/" + taskID + "/stream"
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.MarshalWrite(w, s.card); err != nil {
		http.Error(w, "failed to encode agent card", http.StatusInternalServerError)
	}
}
