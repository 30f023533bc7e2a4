// Package dao implements the uniqueness-enforcement protocol for entity
// documents kept in a store.Adapter.
//
// A DAO is one generic algorithm instantiated per entity type through a
// [Schema]. Entities with a unique field own a reference document (see
// package refindex) for their normalized value. Every mutation follows the
// same order:
//
//  1. reserve the new unique value (reference insert)
//  2. write the entity document
//  3. release the old unique value (update only)
//
// There is no transaction spanning reference and entity documents. When a
// later phase fails, the earlier phases are undone by compensating writes.
// If a compensation fails as well the operation ends DEGRADED, which is
// logged at error level and counted in [Metrics] but never returned.
//
// Once the first phase has written anything, the remaining phases and
// compensations ignore cancellation of the caller's context. Each store call
// is still bounded by the adapter's own timeout.
//
// # Errors
//
// All returned errors are classified by package dberr:
//
//	err := partners.Insert(ctx, p)
//	if errors.Is(err, dberr.ErrDuplicateUnique) {
//	    // name already taken
//	}
package dao
