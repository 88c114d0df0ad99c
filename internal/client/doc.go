// Package client maps aMule remote-control operations onto EC request/response
// exchanges.
//
// Ownership boundary:
// - request tag construction per operation
// - decoding reply trees into records (files, downloads, search results, categories)
// - search polling against a caller deadline
//
// Transport, authentication and request ordering stay in package session.
package client
