// Package couchwatch mirrors a database through a couch.Session and relays
// its change feed to WebSocket clients.
//
// Every change made by another writer is logged and pushed, as JSON, to
// every client connected to the Hub. Documents a client sends are marked
// and committed through the same session, so they reach the other clients
// through the server's change feed rather than as local echoes.
//
// The cmd/couchwatch binary wires a Config file to a Watcher and a Hub.
package couchwatch
