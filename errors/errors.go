package errors

import "fmt"

// FormatError indicates that an archive file could not be parsed at all: its
// signature is missing, its header is truncated, or its segment layout is
// unusable. FormatError is fatal for the file it refers to, but never for a
// batch run.
type FormatError struct {
	File   string
	Reason string
}

func (f FormatError) Error() string {
	if f.File == "" {
		return fmt.Sprintf("invalid archive file: %s", f.Reason)
	}
	return fmt.Sprintf("%s: invalid archive file: %s", f.File, f.Reason)
}

// UnknownField indicates that a query referenced a field name absent from the
// report's structure definition.
type UnknownField struct {
	Report string
	Field  string
}

func (u UnknownField) Error() string {
	return fmt.Sprintf("report %s has no field named %q", u.Report, u.Field)
}

// NotIndexed indicates that the field exists in the report definition, but the
// index file holds no segment for it.
type NotIndexed struct {
	Report  string
	Field   string
	LineID  int
	FieldID int
}

func (n NotIndexed) Error() string {
	return fmt.Sprintf("field %q (line %d, field %d) is not indexed for report %s", n.Field, n.LineID, n.FieldID, n.Report)
}

// ReportNotFound indicates that no index/page store pair exists for the
// requested report, or for the requested revision of it.
type ReportNotFound struct {
	Report   string
	Revision string
}

func (r ReportNotFound) Error() string {
	if r.Revision == "" {
		return fmt.Sprintf("report %s not found", r.Report)
	}
	return fmt.Sprintf("report %s revision %s not found", r.Report, r.Revision)
}

// PageReadError indicates that a single page could not be located or
// inflated. Queries record it and continue with the remaining pages.
type PageReadError struct {
	Page int
	Err  error
}

func (p PageReadError) Error() string {
	return fmt.Sprintf("page %d: %s", p.Page, p.Err)
}

func (p PageReadError) Unwrap() error { return p.Err }

// CannotAcquireAuditLockError indicates that an audit output directory is in
// use by another process. The process holding the lock is present in the PID
// field of this error.
type CannotAcquireAuditLockError struct {
	PID int
}

func (c CannotAcquireAuditLockError) Error() string {
	return fmt.Sprintf("cannot acquire audit lock, as it is being held by process %d", c.PID)
}
