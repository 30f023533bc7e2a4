// Package store defines the document store contract used by refguard.
//
// The contract mirrors what single-document stores such as DynamoDB, NATS
// JetStream KV, Couchbase or Redis can guarantee without transactions:
//
//   - Get reads a document and its version
//   - Insert writes a document only if the key is free (first writer wins)
//   - Replace overwrites a document only if its version still matches
//   - Remove deletes a document
//
// Every implementation returns the same small error vocabulary:
//
//   - [ErrNotFound] - the key does not exist
//   - [ErrAlreadyExists] - Insert lost the race for the key
//   - [ErrVersionConflict] - Replace saw a different version
//   - [ErrTransient] - the store was unreachable or timed out (wrapped, see [Transient])
//
// Any other error is returned as-is and treated as internal by callers.
//
// # Backends
//
// [Memory] lives in this package. Network and embedded backends live in
// sub-packages: store/dynamo, store/natskv, store/redis, store/sqlite and
// store/bolt. Each of them is checked against the shared contract suite in
// store/storetest.
package store
