// Package cmd provides CLI commands for todd.
//
// Commands:
//   - chat: Interactive conversation with Bubble Tea TUI (default)
//   - ask: One-shot question, answer printed to stdout
//   - tools: List the tools discovered on the task backend
//   - sessions: List, show, rename, and delete saved conversations
//   - devserver: Local MCP task backend for development
//
// Signal handling and graceful shutdown are implemented
// for all commands via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
)

// Version is injected at build time via ldflags.
var Version = "0.1.0"

// Execute is the main entry point for the todd CLI application.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		return runChat()
	}

	switch os.Args[1] {
	case "chat":
		return runChat()
	case "ask":
		return runAsk(os.Args[2:])
	case "tools":
		return runTools()
	case "sessions":
		return runSessions(os.Args[2:])
	case "devserver":
		return runDevServer()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Todd - Your terminal task assistant")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  todd                    Start interactive chat mode (default)")
	fmt.Println("  todd chat               Start interactive chat mode")
	fmt.Println("  todd ask <question>     Ask one question and exit")
	fmt.Println("  todd tools              List tools available on the task backend")
	fmt.Println("  todd sessions           Manage saved conversations")
	fmt.Println("  todd devserver [addr]   Start a local task backend (default: 127.0.0.1:8321)")
	fmt.Println("  todd --version          Show version information")
	fmt.Println("  todd --help             Show this help")
	fmt.Println()
	fmt.Println("Chat commands (in interactive mode):")
	fmt.Println("  /help                   Show available commands")
	fmt.Println("  /clear                  Clear the screen")
	fmt.Println("  /exit, /quit            Exit todd")
	fmt.Println()
	fmt.Println("Shortcuts:")
	fmt.Println("  Ctrl+D                  Exit todd")
	fmt.Println("  Ctrl+C                  Cancel the current run or input")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY          Required for the default Gemini provider")
	fmt.Println("  TODD_BACKEND_ENDPOINT   Task backend URL")
	fmt.Println("  DEBUG                   Optional: Enable debug logging")
}

// runVersion displays version information.
func runVersion() {
	fmt.Printf("Todd %s\n", Version)
}
