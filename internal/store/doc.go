// Package store holds the read models served by the API and the queries that
// load them. Queries run through a database.Querier so that they take part in
// the caller's request-scoped session.
package store
