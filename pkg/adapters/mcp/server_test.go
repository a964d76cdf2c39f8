package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aretw0/mobility"
	"github.com/aretw0/mobility/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) (*Server, *mobility.Agent) {
	t.Helper()
	agent := mobility.New("base")
	require.NoError(t, agent.Start(context.Background()))
	t.Cleanup(func() { agent.Stop() })
	return NewServer(agent, nil), agent
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestServer_Tools(t *testing.T) {
	s, agent := newServer(t)
	ctx := context.Background()

	created := s.jsonResult(func(ctx context.Context, args map[string]any) (any, error) {
		var in struct {
			Text string `mapstructure:"text"`
		}
		if err := decode(args, &in); err != nil {
			return nil, err
		}
		return agent.CreateScript(ctx, in.Text)
	})
	res, err := created(ctx, callRequest(map[string]any{"text": "label top\nmove , , , rover, a, b, false"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	res, err = s.handleDescribeScript(ctx, callRequest(map[string]any{"id": "base/1"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "| 1 | 2 | move |")

	res, err = s.handleDescribeScript(ctx, callRequest(map[string]any{"id": "base/9"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	_, err = agent.CreateProc(ctx, domain.UID{Owner: "base", Seq: 1})
	require.NoError(t, err)
	require.NoError(t, agent.Turn(ctx))

	st, err := s.handleStatus(ctx, mcp.CallToolRequest{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Status{Scripts: 1, Procs: 1, Running: 1, Steps: 1}, st)
}

func TestServer_CreateRequest(t *testing.T) {
	s, _ := newServer(t)
	ctx := context.Background()

	v, err := s.createRequest(ctx, map[string]any{
		"kind":          "move",
		"mobile_agent":  "rover",
		"destination":   "field",
		"force_restart": "true",
	})
	require.NoError(t, err)
	req := v.(*domain.Request)
	assert.Equal(t, domain.AgentID("rover"), req.Target)
	assert.True(t, req.Ticket.ForceRestart)

	_, err = s.createRequest(ctx, map[string]any{"kind": "move"})
	assert.ErrorIs(t, err, domain.ErrNoTarget)
}

func TestDecodeID(t *testing.T) {
	id, err := decodeID(map[string]any{"id": "base/7"})
	require.NoError(t, err)
	assert.Equal(t, domain.UID{Owner: "base", Seq: 7}, id)

	_, err = decodeID(map[string]any{})
	assert.ErrorIs(t, err, domain.ErrInvalidUID)
	_, err = decodeID(map[string]any{"id": "nope"})
	assert.ErrorIs(t, err, domain.ErrInvalidUID)
}

func TestServer_ListTools(t *testing.T) {
	s, _ := newServer(t)
	msg := s.MCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	for _, name := range []string{"get_status", "create_script", "create_proc", "get_step", "remove_proc", "create_request"} {
		assert.Contains(t, string(data), `"`+name+`"`)
	}
}
