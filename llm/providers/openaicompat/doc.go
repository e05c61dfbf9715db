// Package openaicompat provides the raw-HTTP generator for any endpoint that
// speaks the OpenAI Chat Completions format.
//
// The participant's system instruction is sent as the system message and the
// rendered history plus speaking cue as a single user message. Streaming uses
// SSE and feeds llm.StreamChunk values to the dispatcher.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "deepseek",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://api.deepseek.com",
//	    DefaultModel: "deepseek-chat",
//	}, logger)
package openaicompat
