// Package agent drives the bounded multi-turn conversation between
// the user, the language model, and the remote tool backend.
//
// Each iteration sends the system prompt plus the full conversation
// history to the model, classifies the response with the tool-call
// parser, and either invokes the requested tool (appending its result
// or error back into the history) or finishes with the response as
// the final answer. The loop always terminates: a fixed iteration cap
// turns a runaway conversation into a soft failure that returns the
// last available content instead of raising.
package agent
