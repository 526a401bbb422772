// Package client is the govledger Go SDK.
//
// It wraps the HTTP API of a govledger server: vote and checkpoint queries,
// delegation, and owner-only supply changes.
//
// # Read-only clients
//
// Queries are public; no token is required:
//
//	c, _ := client.New("http://localhost:8080")
//	votes, err := c.CurrentVotes(ctx, alice)
//
// Historical queries fail with ErrNotYetDetermined until the requested block
// is strictly below the chain head:
//
//	votes, err := c.PriorVotes(ctx, alice, 41)
//	if errors.Is(err, client.ErrNotYetDetermined) {
//	    // wait for the next block
//	}
//
// # Acting as an address
//
// Mutations need a caller token bound to the acting address. Tokens are
// signed with the server's shared secret (see 'govctl token issue'):
//
//	c, _ := client.New(baseURL, client.WithBearerToken(token))
//	block, err := c.Delegate(ctx, bob)
//
// Amounts are *big.Int and are sent as decimal strings.
package client
