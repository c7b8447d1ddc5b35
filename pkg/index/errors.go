package index

import "errors"

var (
	// ErrNotFound indicates no blob row exists for the requested hash.
	//
	// Returned by GetBlob. Existence checks (HasBlob, HasOwner) report a
	// plain false instead.
	ErrNotFound = errors.New("blob not found in index")

	// ErrInvalidColumn indicates a list query referenced a column outside
	// the allow-list for the listed relation.
	//
	// This is returned before any SQL is built or executed. Callers must
	// surface it as a bad request; it is never downgraded to "ignore the
	// filter".
	ErrInvalidColumn = errors.New("invalid column name")

	// ErrInvalidQuery indicates a structurally invalid list query, such as
	// a filter with no values or a range whose end precedes its start.
	ErrInvalidQuery = errors.New("invalid list query")
)
