package storageerrors

import (
	"errors"
	"fmt"
)

type StorageError struct {
	Code    int
	Message string
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage error %d: %s", e.Code, e.Message)
}

const (
	codeNotFound      = 404
	codeConflict      = 409
	codeGone          = 410
	codeBadRequest    = 400
	codeLeaseNotFound = 1404
)

var (
	ErrEmptyKey       = StorageError{Code: codeBadRequest, Message: "key is not provided"}
	ErrLeaseNotFound  = StorageError{Code: codeLeaseNotFound, Message: "requested lease not found"}
	ErrLeaseExists    = StorageError{Code: codeConflict, Message: "lease already exists"}
	ErrCompacted      = StorageError{Code: codeGone, Message: "required revision has been compacted"}
	ErrKeyNotFound    = StorageError{Code: codeNotFound, Message: "key not found"}
	ErrInvalidLeaseID = StorageError{Code: codeBadRequest, Message: "lease id is required"}
)

func ToStorgeError(e error) *StorageError {
	var se StorageError
	if !errors.As(e, &se) {
		return nil
	}
	return &se
}

func hasCode(e error, code int) bool {
	if e == nil {
		return false
	}
	se := ToStorgeError(e)
	if se == nil {
		return false
	}
	return se.Code == code
}

func IsNotFoundError(e error) bool {
	return hasCode(e, codeNotFound)
}

func IsLeaseNotFoundError(e error) bool {
	return hasCode(e, codeLeaseNotFound)
}

func IsConflictError(e error) bool {
	return hasCode(e, codeConflict)
}

func IsCompactedError(e error) bool {
	return hasCode(e, codeGone)
}

func IsBadRequestError(e error) bool {
	return hasCode(e, codeBadRequest)
}
