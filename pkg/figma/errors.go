package figma

import "fmt"

// AuthError means the API rejected the access token or the token lacks
// permission on the file. Fatal: retrying cannot help.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("figma: authentication rejected (status %d): %s", e.Status, e.Body)
}

// Retryable reports whether another attempt can succeed. Always false.
func (e *AuthError) Retryable() bool { return false }

// NotFoundError means the file key does not name an accessible file.
type NotFoundError struct {
	FileKey string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("figma: file %q not found", e.FileKey)
}

// Retryable reports whether another attempt can succeed. Always false.
func (e *NotFoundError) Retryable() bool { return false }

// TransientError covers rate limits, server errors, and transport
// failures. Eligible for retry with backoff.
type TransientError struct {
	Status int // 0 for transport errors
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("figma: transient failure (status %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("figma: transient failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt can succeed. Always true.
func (e *TransientError) Retryable() bool { return true }
