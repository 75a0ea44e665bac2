// Package citation checks that a bibliographic citation is well-formed in
// the Chicago author-date style the bank requires:
//
//	Last, First. Year. "Title." *Journal* Volume(Issue): Pages. DOI-or-URL
//
// The check is structural only. It cannot tell whether a citation refers
// to a real publication, only whether every component is present and shaped
// correctly. On failure the error lists each missing or malformed component.
package citation
