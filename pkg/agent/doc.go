// Package agent runs the question-answering loop: it sends the conversation to an
// LLM, executes the database tools the model asks for, and feeds the results back
// until the model answers in plain text.
//
// Invariants:
// - Runs for one session key are serialized.
// - Session history is loaded before execution and persisted after execution.
// - Tool calls route through toolexecutor only.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{...})
//	result, _ := runner.Run(ctx, agent.AgentRunParams{
//		Prompt:     "How many films are in sakila?",
//		SessionKey: "default",
//		Config:     agent.DefaultConfig(),
//	})
//	_ = result
package agent
