package crypto

import "fmt"

// Error reports a cryptographic failure: a tampered ciphertext, a wrong key,
// an unparseable envelope or an unsupported storage version. Callers must
// treat any *Error as a hard failure; no partial plaintext is ever returned
// alongside one.
type Error struct {
	Op  string // operation that failed, e.g. "decrypt", "verify_signature"
	Err error  // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("crypto: %s failed", e.Op)
	}
	return fmt.Sprintf("crypto: %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}
