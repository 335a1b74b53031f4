// Package couch is a client for CouchDB-style document stores.
//
// # Servers and databases
//
// A [Server] and the [Database] values it hands out share one
// [connection.Transport]. Both build request URLs relative to their base path
// and expose synchronous and callback variants of every HTTP verb:
//
//	server := couch.NewServer(connection.New(cfg), "http://localhost:5984/")
//	db := server.Database("mydb")
//	doc := models.Document{"foo": "bar"}
//	row, err := db.Save(ctx, doc) // doc["_id"] and doc["_rev"] are updated in place
//
// # Change feed
//
// [ChangesMonitor] keeps exactly one long-poll _changes request outstanding
// and calls back whenever the feed advances. It stops on the first failed
// poll unless a [Retryer] is configured.
//
// # Sessions
//
// [Session] mirrors a whole database in memory. Local edits are recorded
// with [Session.Mark] and flushed with [Session.Commit] through a single
// all-or-nothing _bulk_docs request; commits requested while one is in
// flight are coalesced into exactly one follow-up request. Remote changes
// arrive through the change feed and are applied to the cache, skipping
// the echoes of the session's own commits.
package couch
