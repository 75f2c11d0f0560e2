package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aretw0/sluice/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	graph *domain.Graph
	ran   []string
}

func (e *stubEngine) Graph() *domain.Graph { return e.graph }

func (e *stubEngine) Run(_ context.Context, names ...string) (*domain.RunRecord, error) {
	if _, err := e.graph.Closure(names...); err != nil {
		return nil, err
	}
	e.ran = append(e.ran, names...)
	return &domain.RunRecord{
		ID:      "run-1",
		Status:  domain.RunFailed,
		Error:   "sass: exit 1",
		Results: []domain.TaskResult{{Name: "sass", Status: domain.TaskFailed, Error: "exit 1"}},
	}, errors.New("sass: exit 1")
}

func newStub(t *testing.T) *stubEngine {
	t.Helper()
	g, err := domain.NewGraph(
		domain.Task{Name: "sass", Description: "Compile styles\n\nLonger text."},
		domain.Task{Name: "default", Deps: []string{"sass"}},
	)
	require.NoError(t, err)
	return &stubEngine{graph: g}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = "run_task"
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestListTasks(t *testing.T) {
	s := NewServer(newStub(t), "0.1.0", nil)
	res, err := s.handleListTasks(context.Background(), mcp.CallToolRequest{})
	require.NoError(t, err)
	assert.Equal(t, "default [sass]\nsass - Compile styles\n", text(t, res))
}

func TestRunTask(t *testing.T) {
	engine := newStub(t)
	s := NewServer(engine, "0.1.0", nil)

	resp, err := s.handleRunTask(context.Background(), callRequest(map[string]any{"tasks": " sass , default"}), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"sass", "default"}, engine.ran)
	assert.Equal(t, domain.RunFailed, resp.Status)
	assert.Equal(t, "run-1", resp.ID)
	require.Len(t, resp.Results, 1)

	_, err = s.handleRunTask(context.Background(), callRequest(map[string]any{"tasks": "deploy"}), nil)
	assert.ErrorIs(t, err, domain.ErrUnknownTask)

	_, err = s.handleRunTask(context.Background(), callRequest(map[string]any{}), nil)
	assert.Error(t, err)
}

func TestToolsAreAdvertised(t *testing.T) {
	s := NewServer(newStub(t), "0.1.0", nil)
	msg := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	for _, name := range []string{"list_tasks", "run_task", "get_graph"} {
		assert.Contains(t, string(data), `"name":"`+name+`"`)
	}
}

func TestGraphJSON(t *testing.T) {
	s := NewServer(newStub(t), "0.1.0", nil)
	data, err := s.graphJSON()
	require.NoError(t, err)

	var tasks []domain.Task
	require.NoError(t, json.Unmarshal(data, &tasks))
	assert.Equal(t, "default", tasks[0].Name)

	_, err = NewServer(&stubEngine{}, "0.1.0", nil).graphJSON()
	assert.Error(t, err)
}
