package object

import (
	"errors"
	"fmt"
)

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrCorruptObject  = errors.New("corrupt object")
	ErrInvalidHash    = errors.New("invalid object hash")
	ErrNotABlob       = errors.New("not a blob object")
	ErrNotATree       = errors.New("not a tree object")
	ErrNotACommit     = errors.New("not a commit object")
	ErrBadSignature   = errors.New("invalid identity")
)

// TypeMismatchError reports an object whose stored kind differs from the
// kind the caller asked for. It matches ErrNotABlob, ErrNotATree or
// ErrNotACommit depending on Want.
type TypeMismatchError struct {
	Hash Hash
	Got  ObjectType
	Want ObjectType
}

func (e *TypeMismatchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("object %s: %v (got %q)", e.Hash, e.sentinel(), e.Got)
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *TypeMismatchError) sentinel() error {
	switch e.Want {
	case TypeBlob:
		return ErrNotABlob
	case TypeTree:
		return ErrNotATree
	case TypeCommit:
		return ErrNotACommit
	}
	return ErrCorruptObject
}
