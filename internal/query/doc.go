// Package query is the read-only façade over committed mechanisms.
//
// Nothing here validates, classifies or writes. Every read goes straight to
// the store, so only committed records are ever visible.
package query
