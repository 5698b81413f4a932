package erp

import (
	"fmt"
	"strings"
)

// TransientError is a transport-level failure (connection refused, timeout,
// 5xx). Reads are retried on it; writes are retried only with an idempotency
// key attached.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("erp %s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// RemoteError is a business error reported by the ERP itself (invalid model,
// permission denied, validation error). Message carries only the ERP's
// user-facing message, never a traceback or credentials.
type RemoteError struct {
	Model   string
	Method  string
	Name    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("erp %s.%s rejected: %s", e.Model, e.Method, e.Message)
}

// IsDuplicateKey reports whether the rejection was caused by a unique
// constraint, which for idempotent creates means the record already exists.
func (e *RemoteError) IsDuplicateKey() bool {
	if strings.Contains(e.Name, "IntegrityError") {
		return true
	}
	msg := strings.ToLower(e.Message)
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "already exists")
}
