// Package llm provides a provider-neutral abstraction layer for Large Language Model (LLM) APIs.
//
// This package defines common types, interfaces, and utilities that allow the codebase
// to work with multiple LLM providers (OpenAI, Anthropic, Cohere, DeepSeek, Mistral, Groq,
// Ollama, XAI, Gemini, VoyageAI) without being tightly coupled to any provider's wire format.
//
// # Core Concepts
//
//  1. Messages: Message is a closed sum type over SystemMessage, UserMessage,
//     AssistantMessage and ToolResultMessage. Assistant messages carry ToolCalls and
//     tool result messages carry the matching ToolResults.
//
//  2. Tools: ToolSpec is the declaration of a tool as sent to a provider. The callable
//     side lives in the tools package.
//
//  3. Provider Interface: Provider exposes Text, Structured, Embeddings and Stream.
//     Adapters embed Unsupported for capabilities their backend lacks.
//
//  4. Normalization: every adapter turns its backend payload into a Response holding
//     text, tool calls, Usage, a FinishReason and ResponseMeta. Stop reasons are
//     mapped through a per-backend FinishReasonMap.
//
//  5. Middleware: Middleware and StreamMiddleware add cross-cutting concerns like
//     logging without modifying provider implementations.
//
//  6. Errors: Error classifies failures (configuration, network, response, rate limit,
//     unsupported) and carries rate-limit windows when the backend reports them.
//
// Usage Example
//
//	provider := llm.WrapWithMiddleware(openaiClient, loggingMiddleware)
//
//	resp, err := provider.Text(ctx, &llm.Request{
//	    Model: "gpt-4o-mini",
//	    Messages: []llm.Message{
//	        llm.NewUserMessage("Hello!"),
//	    },
//	})
//
// # Extension Points
//
// To add a new LLM provider:
//  1. Implement the Provider interface, embedding Unsupported for missing capabilities
//  2. Translate messages and ToolSpecs into the backend's request shape
//  3. Normalize the backend response with a pure function and a FinishReasonMap
//  4. Translate backend errors into llm.Error values
package llm
