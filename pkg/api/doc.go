/*
Package api is the local HTTP status/control surface in front of a
pkg/service.Facade.

	┌──────────────────────────── Server ────────────────────────────┐
	│  GET    /accounts                 -> Facade.Accounts            │
	│  POST   /accounts                 -> Facade.AddAccount          │
	│  DELETE /accounts/{id}            -> Facade.RemoveAccount       │
	│  GET    /accounts/{id}/resources  -> Facade.Resource/Contents   │
	│  POST   /accounts/{id}/sync       -> Facade.UpdateResource      │
	│  GET    /healthz /readyz /livez   -> pkg/metrics health handlers│
	│  GET    /metrics                  -> pkg/metrics Prometheus     │
	└───────────────────────────────────────────────────────────────┘

Every handler is a thin JSON wrapper around one Facade call; the Server
holds no state of its own beyond the Facade reference and never touches the
Store directly. Errors are translated from a types.Error's Kind into an
HTTP status (see errorStatus) so a caller can retry or surface the failure
without parsing prose.

There is no authentication layer: this server is meant to be bound to
localhost (or a Unix socket, via the same net/http.Server) for a single
user's own daemon, not exposed across a network boundary. A multi-node
deployment with untrusted peers would need one; this engine has no peers.
*/
package api
