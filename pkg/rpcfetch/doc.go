// Package rpcfetch is the JSON-RPC client for X1-Duel nodes.
//
// RPCClient wraps every method the node serves with typed results,
// including the duel read methods (getPlatformConfig, getMatch,
// getOpenMatches, getMatchHistory). Requests go through a Pool, which picks
// the endpoint and tracks its health; SimplePool rotates over a fixed list
// and rpcpool.Pool adds background health checks.
//
// Basic usage:
//
//	client := rpcfetch.Dial("http://localhost:8899")
//	sig, err := client.SendTransaction(ctx, tx)
//	if failure, ok := rpcfetch.AsTransactionFailure(err); ok {
//	    code, _ := failure.CustomCode()
//	    fmt.Println("program error", code, failure.Logs)
//	}
//
// A Watcher polls one match and delivers each change of status on its
// Updates channel:
//
//	w, _ := rpcfetch.NewWatcher(pool, matchAddress, rpcfetch.DefaultConfig())
//	w.Start(ctx)
//	for view := range w.Updates() {
//	    fmt.Println(view.Status)
//	}
package rpcfetch
