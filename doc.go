// Package agentrt is an in-process runtime that routes messages to agents.
//
// Hosts register a factory per agent type and address agents only by
// agent.AgentID. The runtime creates each instance on its first delivery,
// delivers messages in global submission order, and runs at most one
// handler at a time. A handler that waits through agent.Suspend or
// Future.Await yields its slot so other messages keep flowing.
//
//	rt := agentrt.New(agentrt.WithLogger(logger))
//	echo, _ := rt.Register("echo", newEcho)
//	_ = rt.Start()
//	out, err := agentrt.Call[string](ctx, rt, "hi", agent.NewAgentID(echo, "a"))
//	_ = rt.StopWhenIdle(ctx)
//	_ = rt.Close(ctx)
package agentrt
