// Package entities defines the business entity types and instantiates a DAO
// for each of them.
//
//	| Type     | Unique field           |
//	|----------|------------------------|
//	| partner  | name                   |
//	| employee | email (empty = none)   |
//	| location | name                   |
//	| position | name                   |
//	| currency | -                      |
//	| language | -                      |
//	| setting  | -                      |
//
// Every type has a patch struct with pointer fields. A nil field leaves the
// stored value unchanged.
package entities
