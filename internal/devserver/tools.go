package devserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// TaskCreateInput defines the input schema for task_create.
type TaskCreateInput struct {
	Title string `json:"title" jsonschema:"Short title of the task"`
	Notes string `json:"notes,omitempty" jsonschema:"Optional free-form notes"`
}

// TaskListInput defines the input schema for task_list.
type TaskListInput struct {
	IncludeDone bool `json:"include_done,omitempty" jsonschema:"Include completed tasks in the listing"`
}

// TaskUpdateInput defines the input schema for task_update.
type TaskUpdateInput struct {
	ID    string `json:"id" jsonschema:"ID of the task to update"`
	Title string `json:"title,omitempty" jsonschema:"New title; empty keeps the current title"`
	Notes string `json:"notes,omitempty" jsonschema:"New notes; empty keeps the current notes"`
}

// TaskCompleteInput defines the input schema for task_complete.
type TaskCompleteInput struct {
	ID string `json:"id" jsonschema:"ID of the task to mark done"`
}

// TaskDeleteInput defines the input schema for task_delete.
type TaskDeleteInput struct {
	ID string `json:"id" jsonschema:"ID of the task to delete"`
}

// registerTaskTools registers the task tools on one namespace server.
// Handlers build MCP responses inline, like net/http.Handler: user
// mistakes (bad ID, empty title) come back as IsError results the
// model can read, while nothing here returns a protocol-level error.
func registerTaskTools(srv *mcp.Server, store *TaskStore, namespace string) {
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "task_create",
		Description: "Add a new task to the user's task list.",
		InputSchema: mustSchema[TaskCreateInput](),
	}, func(ctx context.Context, req *mcp.CallToolRequest, in TaskCreateInput) (*mcp.CallToolResult, any, error) {
		task, err := store.Create(namespace, in.Title, in.Notes)
		if err != nil {
			return errorResult(err.Error()), nil, nil
		}
		return textResult("Created task:\n" + formatTask(task)), nil, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "task_list",
		Description: "List the user's tasks. Completed tasks are hidden unless include_done is true.",
		InputSchema: mustSchema[TaskListInput](),
	}, func(ctx context.Context, req *mcp.CallToolRequest, in TaskListInput) (*mcp.CallToolResult, any, error) {
		tasks := store.List(namespace, in.IncludeDone)
		if len(tasks) == 0 {
			return textResult("No tasks."), nil, nil
		}
		lines := make([]string, 0, len(tasks))
		for _, task := range tasks {
			lines = append(lines, formatTask(task))
		}
		return textResult(strings.Join(lines, "\n")), nil, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "task_update",
		Description: "Change the title or notes of an existing task.",
		InputSchema: mustSchema[TaskUpdateInput](),
	}, func(ctx context.Context, req *mcp.CallToolRequest, in TaskUpdateInput) (*mcp.CallToolResult, any, error) {
		id, err := uuid.Parse(in.ID)
		if err != nil {
			return errorResult(fmt.Sprintf("invalid task ID %q", in.ID)), nil, nil
		}
		task, err := store.Update(namespace, id, in.Title, in.Notes)
		if err != nil {
			return taskError(err), nil, nil
		}
		return textResult("Updated task:\n" + formatTask(task)), nil, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "task_complete",
		Description: "Mark a task as done.",
		InputSchema: mustSchema[TaskCompleteInput](),
	}, func(ctx context.Context, req *mcp.CallToolRequest, in TaskCompleteInput) (*mcp.CallToolResult, any, error) {
		id, err := uuid.Parse(in.ID)
		if err != nil {
			return errorResult(fmt.Sprintf("invalid task ID %q", in.ID)), nil, nil
		}
		task, err := store.Complete(namespace, id)
		if err != nil {
			return taskError(err), nil, nil
		}
		return textResult("Completed task:\n" + formatTask(task)), nil, nil
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "task_delete",
		Description: "Delete a task permanently.",
		InputSchema: mustSchema[TaskDeleteInput](),
	}, func(ctx context.Context, req *mcp.CallToolRequest, in TaskDeleteInput) (*mcp.CallToolResult, any, error) {
		id, err := uuid.Parse(in.ID)
		if err != nil {
			return errorResult(fmt.Sprintf("invalid task ID %q", in.ID)), nil, nil
		}
		if err := store.Delete(namespace, id); err != nil {
			return taskError(err), nil, nil
		}
		return textResult(fmt.Sprintf("Deleted task %s.", id)), nil, nil
	})
}

// mustSchema infers a tool input schema from its struct type. The
// input types are fixed at compile time, so a failure here is a
// programming error.
func mustSchema[T any]() *jsonschema.Schema {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("devserver: inferring schema: %v", err))
	}
	return schema
}

func formatTask(task Task) string {
	box := "[ ]"
	if task.Done {
		box = "[x]"
	}
	line := fmt.Sprintf("%s %s  %s", box, task.ID, task.Title)
	if task.Notes != "" {
		line += "\n    notes: " + task.Notes
	}
	return line
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

func taskError(err error) *mcp.CallToolResult {
	if errors.Is(err, ErrTaskNotFound) {
		return errorResult(err.Error())
	}
	return errorResult("task operation failed: " + err.Error())
}
