/*
Package client is a small Go wrapper around pkg/api's HTTP endpoints, for a
CLI invocation that talks to an already-running daemon instead of opening
the Store in-process.

	client := client.New("http://127.0.0.1:8787")
	accounts, err := client.ListAccounts(ctx)
	cs, err := client.Sync(ctx, accounts[0].ID, types.Path{"notes.txt"})

Every method does exactly one HTTP round trip and decodes the JSON response
into the matching pkg/types value or this package's own Account wire type;
there is no retry or connection pooling
beyond what the standard library's http.Client already provides.
*/
package client
