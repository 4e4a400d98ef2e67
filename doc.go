// Package leanstore is a client for a LeanCloud-style REST object store.
//
// # Objects
//
// An [Object] is a record of a store class. Mutators such as [Object.Set],
// [Object.Increment] and [Object.AddUnique] queue field operations locally;
// successive operations on one field merge into one. [Object.Save] sends them,
// [Object.Fetch] reloads the record and [Object.Destroy] deletes it. The batch
// variants [Client.SaveAll], [Client.FetchAll] and [Client.DestroyAll] work on
// many objects at once.
//
// Classes may be customized with [Client.Extend], which registers initialization
// and validation hooks and an optional identity table so that decoding a row of a
// known object updates the instance already in memory.
//
// # Promises
//
// Every call that talks to the store returns a [promise.Promise]. Continuations
// run on the client's [promise.Loop], one at a time; plain Go code can block with
// Await.
//
//	obj := client.Object("Todo")
//	_ = obj.Set("title", "write docs")
//	saved, err := obj.Save(ctx).Await(ctx)
//
// # Queries
//
// A [Query] accumulates constraints on one class and runs them with Find, First,
// Get, Count or Each. [SearchQuery] pages through a full text search and
// [InboxQuery] reads the statuses delivered to a user.
//
// # Transports
//
// A [Client] sends requests through a [connection.Connection]. Use
// [FromEndpointURLString] to talk to a REST endpoint over HTTP.
package leanstore
