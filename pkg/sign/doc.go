// Package sign defines the wallet boundary used to authenticate against a
// ClearNode and to authorize on-chain deposits.
//
// A Wallet produces two kinds of signatures: EIP-712 typed-data signatures,
// used once per connection to answer the authentication challenge, and
// EIP-191 personal signatures over the canonical JSON of an RPC payload,
// used for every other signed request.
//
// EthereumWallet keeps a private key in memory and is used by the CLI.
// MockWallet records every request and can be told to reject, which makes it
// suitable for exercising failure paths in tests.
//
//	wallet, err := sign.NewEthereumWallet(os.Getenv("PRIVATE_KEY"), 11155111)
//	if err != nil {
//		return err
//	}
//	sig, err := wallet.SignMessage(ctx, payloadJSON)
package sign
