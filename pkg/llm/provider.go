// Package llm provides abstractions for LLM provider integration.
//
// Example usage:
//
//	provider, err := openai.NewProvider(
//	    os.Getenv("OPENAI_API_KEY"),
//	    openai.WithModel("gpt-4o"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reply, err := provider.Complete(ctx, []llm.Message{
//	    llm.SystemMessage("You are a careful software engineer."),
//	    llm.UserMessage("Rename foo to bar in this file: ..."),
//	})
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// UserMessage creates a user message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// AssistantMessage creates an assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// StreamChunk is one piece of a streamed completion.
type StreamChunk struct {
	Error    error
	Role     string
	Content  string
	Finished bool
}

// IsError reports whether the chunk carries a stream error.
func (c *StreamChunk) IsError() bool { return c.Error != nil }

// Provider defines the interface for LLM integrations.
//
// Providers only speak their API. Prompting, output cleanup and plan parsing
// live in the oracle, so every backend is interchangeable.
type Provider interface {
	// StreamCompletion sends messages and streams back response chunks.
	// The channel is closed when the stream ends; stream-time errors arrive
	// as chunks with Error set.
	StreamCompletion(ctx context.Context, messages []Message) (<-chan *StreamChunk, error)

	// Complete sends messages and returns the full response text.
	Complete(ctx context.Context, messages []Message) (string, error)

	// GetModel returns the model name being used.
	GetModel() string

	// Name returns the provider name, e.g. "openai".
	Name() string
}

// Collect drains a stream into the full response text.
func Collect(stream <-chan *StreamChunk) (string, error) {
	var sb strings.Builder
	for chunk := range stream {
		if chunk.IsError() {
			// Drain so the producer can exit.
			for range stream {
			}
			return "", chunk.Error
		}
		sb.WriteString(chunk.Content)
	}
	return sb.String(), nil
}

// APIError is returned when a provider answers with a non-success status.
type APIError struct {
	Provider   string
	Body       string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API request failed with status %d: %s", e.Provider, e.StatusCode, e.Body)
}
