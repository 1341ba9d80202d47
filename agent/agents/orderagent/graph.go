package orderagent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/nodes"
)

func (a *Agent) compileTurnGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, a.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_history",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadHistory(ctx, in, a.cfg.HistoryLimit)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_history: %w", err)
	}

	if err := graph.AddLambdaNode("run_tools",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RunTools(ctx, in, a.cfg.MaxToolRounds, a.cfg.ProviderTimeout)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node run_tools: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	if err := graph.AddLambdaNode("estimate_usage",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.EstimateUsage(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node estimate_usage: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_history"},
		{"load_history", "run_tools"},
		{"run_tools", "finalize_reply"},
		{"finalize_reply", "estimate_usage"},
		{"estimate_usage", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orderagent.turn"))
	if err != nil {
		return nil, fmt.Errorf("compile order agent graph: %w", err)
	}
	return runner, nil
}
