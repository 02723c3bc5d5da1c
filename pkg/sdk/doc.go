// Package sdk is the entry point for applications. A Client owns one
// wallet's session with the coordinator, its cached ledger view and its
// deposit flows, and publishes everything that changes on one hub.
//
//	client := sdk.New(wallet, sdk.Config{Session: session.Config{URL: url, Auth: auth}})
//	defer client.Close()
//	client.OnBalanceUpdate(func(b []ledger.Balance) { ... })
//	if err := client.Connect(ctx); err != nil { ... }
//
// There is no process-wide instance; create one Client per wallet.
package sdk
