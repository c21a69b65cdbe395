package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain operations
var (
	// ErrArrayNotFound indicates the listing document has no array at the configured path
	ErrArrayNotFound = errors.New("listing array not found")

	// ErrFieldMissing indicates a listing element lacks the identifier field
	ErrFieldMissing = errors.New("listing identifier field missing")

	// ErrUnexpectedStatus indicates a non-2xx HTTP response
	ErrUnexpectedStatus = errors.New("unexpected status code")

	// ErrReadTimeout indicates no data arrived within the read timeout
	ErrReadTimeout = errors.New("read timed out")

	// ErrInsufficientSpace indicates the staging filesystem cannot hold the declared size
	ErrInsufficientSpace = errors.New("insufficient disk space")

	// ErrUnsafeArchivePath indicates an archive entry escapes the extraction directory
	ErrUnsafeArchivePath = errors.New("archive entry escapes staging directory")

	// ErrSystemNotFound indicates no catalog system matched a lookup
	ErrSystemNotFound = errors.New("system not found")
)

// ErrorKind categorizes failures for the failure log.
type ErrorKind string

const (
	KindFatalInit ErrorKind = "fatal_init"
	KindListing   ErrorKind = "listing"
	KindTransfer  ErrorKind = "transfer"
	KindInstall   ErrorKind = "install"
)

// FatalInitError aborts the session: the catalog could not be read or parsed.
type FatalInitError struct {
	Path string
	Err  error
}

func (e *FatalInitError) Error() string {
	return fmt.Sprintf("loading catalog %s: %v", e.Path, e.Err)
}

func (e *FatalInitError) Unwrap() error { return e.Err }

// ListingError is a recoverable failure fetching or decoding a listing.
type ListingError struct {
	System string
	Err    error
}

func (e *ListingError) Error() string {
	return fmt.Sprintf("listing %s: %v", e.System, e.Err)
}

func (e *ListingError) Unwrap() error { return e.Err }

// TransferError is a recoverable failure downloading one item.
type TransferError struct {
	Item string
	Op   string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %s: %v", e.Item, e.Op, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// InstallError is a recoverable failure extracting or relocating one item.
type InstallError struct {
	Path string
	Op   string
	Err  error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s: %s: %v", e.Op, e.Path, e.Err)
}

func (e *InstallError) Unwrap() error { return e.Err }

// KindOf maps an error to its failure-log category.
func KindOf(err error) ErrorKind {
	var (
		fatal   *FatalInitError
		listing *ListingError
		install *InstallError
	)
	switch {
	case errors.As(err, &fatal):
		return KindFatalInit
	case errors.As(err, &listing):
		return KindListing
	case errors.As(err, &install):
		return KindInstall
	default:
		return KindTransfer
	}
}
