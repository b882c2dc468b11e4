package importer

import "fmt"

// Error is a data integrity or lookup failure for one dataset.
type Error struct {
	Source string
	ID     string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s dataset %s: %s", e.Source, e.ID, e.Msg)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// InvalidIDError rejects an ID that does not match the source syntax.
type InvalidIDError struct {
	Source string
	ID     string
	Format string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("invalid %s ID %q: expected %s", e.Source, e.ID, e.Format)
}

// UnrecognisedTagError is returned for a template tag the source cannot fill.
type UnrecognisedTagError struct {
	Tag string
}

func (e *UnrecognisedTagError) Error() string {
	return "unrecognised template tag " + e.Tag
}
