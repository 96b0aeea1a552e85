package rowcache

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/rowcache/internal/wire"
)

var (
	// ErrDuplicateKey reports that an equivalent cache already exists and has
	// finished its build phase. It is a control signal, not a failure: a
	// pipeline receiving it from CreateCache must skip its own build phase and
	// go straight to fetching. Callers check it with errors.Is and must never
	// collapse it into a generic error.
	ErrDuplicateKey = errors.New("rowcache: duplicate key (cache already built)")

	// ErrNotStarted is returned when a request is dispatched before the
	// transport has been started by CreateCache.
	ErrNotStarted = errors.New("rowcache: transport not started")

	// ErrTransportClosed fails requests still outstanding when the transport
	// shuts down.
	ErrTransportClosed = errors.New("rowcache: transport closed")

	// ErrNilBuffer is returned by WriteBuffer for a nil row buffer.
	ErrNilBuffer = errors.New("rowcache: nil row buffer")

	// ErrNoRowIDs is returned by GetRows for an empty row id list.
	ErrNoRowIDs = errors.New("rowcache: no row ids requested")

	// ErrNilSchema is returned by CacheSchema for a nil column map.
	ErrNilSchema = errors.New("rowcache: nil schema")
)

// IdentityError reports a CreateCache call whose tree checksum does not match
// the checksum the established connection was created with. Two pipelines may
// share a cache only when the subtrees feeding it are provably identical; a
// mismatch under the same session would silently mix incompatible cached data,
// so it is rejected without touching client state or the network.
type IdentityError struct {
	Have uint32 // checksum the connection was established with
	Got  uint32 // checksum of the rejected call
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("rowcache: cache created for tree checksum %d, refusing reuse for checksum %d", e.Have, e.Got)
}

// RemoteError carries a failure status returned by the cache service.
type RemoteError struct {
	Verb wire.Verb
	Code wire.Code
	Msg  string
}

func (e *RemoteError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("rowcache: %s failed: %s", e.Verb, e.Code)
	}
	return fmt.Sprintf("rowcache: %s failed: %s: %s", e.Verb, e.Code, e.Msg)
}

// codeError maps a response code to the error surfaced by Wait. CodeOK maps to
// nil and CodeDuplicateKey to the ErrDuplicateKey sentinel so that it stays
// distinguishable through errors.Is.
func codeError(verb wire.Verb, code wire.Code, msg string) error {
	switch code {
	case wire.CodeOK:
		return nil
	case wire.CodeDuplicateKey:
		return ErrDuplicateKey
	default:
		return &RemoteError{Verb: verb, Code: code, Msg: msg}
	}
}
