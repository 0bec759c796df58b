package halcache

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotAnEntity     = errors.New("halcache: not an entity or URI")
	ErrNotFound        = errors.New("halcache: resource was deleted")
	ErrForbidden       = errors.New("halcache: permission denied")
	ErrNotARelation    = errors.New("halcache: not a relation")
	ErrVirtualResource = errors.New("halcache: not supported on a virtual resource")
	ErrNoMatch         = errors.New("halcache: no item matched")
)

// NotAnEntityError is returned when a target is neither a URI nor a view
// with a self link.
type NotAnEntityError struct {
	Op    string
	Value any
}

func (e *NotAnEntityError) Error() string {
	return fmt.Sprintf("could not perform %s, %q is not an entity or URI", e.Op, fmt.Sprint(e.Value))
}

func (e *NotAnEntityError) Is(target error) bool { return target == ErrNotAnEntity }

// ServerError is a response with an error status.
type ServerError struct {
	Op     string
	URI    string
	Status int
	Body   []byte
}

func (e *ServerError) Error() string {
	switch {
	case e.Gone():
		return fmt.Sprintf("could not %s %q: resource was deleted", e.Op, e.URI)
	case e.Status == http.StatusForbidden:
		return fmt.Sprintf("no permission to %s %q", e.Op, e.URI)
	default:
		return fmt.Sprintf("error trying to %s %q: %d %s", e.Op, e.URI, e.Status, http.StatusText(e.Status))
	}
}

// Gone reports whether the status says the resource no longer exists.
func (e *ServerError) Gone() bool {
	return e.Status == http.StatusNotFound || e.Status == http.StatusGone
}

func (e *ServerError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Gone()
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	}
	return false
}

// TransportError is a request that got no response at all.
type TransportError struct {
	Op  string
	URI string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("error trying to %s %q: %v", e.Op, e.URI, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotARelationError is returned when a name that is not in the relation
// table of an entity is followed like a relation.
type NotARelationError struct {
	Relation string
	Self     string
	Value    any
}

func (e *NotARelationError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("property %q on %q is used like a relation but does not exist", e.Relation, e.Self)
	}
	return fmt.Sprintf("property %q on %q is used like a relation but is a plain value (%v)", e.Relation, e.Self, e.Value)
}

func (e *NotARelationError) Is(target error) bool { return target == ErrNotARelation }

// VirtualResourceError is returned by operations that need an independent
// URI when called on an embedded collection.
type VirtualResourceError struct {
	Op string
}

func (e *VirtualResourceError) Error() string {
	return fmt.Sprintf("%s is not implemented for virtual resources", e.Op)
}

func (e *VirtualResourceError) Is(target error) bool { return target == ErrVirtualResource }
