package errors

import (
	"fmt"
	"sort"
	"strings"
)

// Code classifies a structured error reported by a parsing component.
type Code int

const (
	// CodeOK means no error has been recorded.
	CodeOK Code = iota
	// CodeIOError is a failed open, stat or read.
	CodeIOError
	// CodeEmpty is a zero-length database file.
	CodeEmpty
	// CodeMisuse is an API used out of order or with impossible arguments.
	CodeMisuse
	// CodeNotADatabase is a file that does not carry the SQLite magic.
	CodeNotADatabase
	// CodeFormat is a header field outside its legal range.
	CodeFormat
	// CodeCorrupt is content that contradicts the file's own geometry.
	CodeCorrupt
	// CodeChecksum is a WAL header or frame checksum mismatch.
	CodeChecksum
)

var codeNames = map[Code]string{
	CodeOK:           "ok",
	CodeIOError:      "ioerr",
	CodeEmpty:        "empty",
	CodeMisuse:       "misuse",
	CodeNotADatabase: "notadb",
	CodeFormat:       "format",
	CodeCorrupt:      "corrupt",
	CodeChecksum:     "checksum",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// Kind groups codes by how callers should react to them.
type Kind int

const (
	// KindNone is the kind of CodeOK.
	KindNone Kind = iota
	// KindIO errors are failures of the read itself; retrying later may succeed.
	KindIO
	// KindIntegrity errors mean the file is malformed; output must not be trusted.
	KindIntegrity
	// KindValidation errors are checksum failures absorbed by truncating the WAL.
	KindValidation
	// KindProgramming errors are caller bugs.
	KindProgramming
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindIO:
		return "io"
	case KindIntegrity:
		return "integrity"
	case KindValidation:
		return "validation"
	case KindProgramming:
		return "programming"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Kind returns the kind the code belongs to.
func (c Code) Kind() Kind {
	switch c {
	case CodeOK:
		return KindNone
	case CodeIOError, CodeEmpty:
		return KindIO
	case CodeNotADatabase, CodeFormat, CodeCorrupt:
		return KindIntegrity
	case CodeChecksum:
		return KindValidation
	default:
		return KindProgramming
	}
}

// IsIntegrity reports whether the code describes a malformed file rather
// than a failed read.
func (c Code) IsIntegrity() bool {
	return c.Kind() == KindIntegrity
}

// sentinel returns the package sentinel matching the code's kind.
func (c Code) sentinel() error {
	switch c.Kind() {
	case KindIO:
		return ErrIO
	case KindIntegrity, KindValidation:
		return ErrCorrupt
	case KindProgramming:
		return ErrMisuse
	}
	return nil
}

// Error is the structured error exposed by every ErrorProne component.
// Context carries key/value details such as the offending page number.
type Error struct {
	Code    Code
	Message string
	Context map[string]any
	Err     error
}

// New creates a structured error. kv is read as alternating keys and values;
// a trailing key without value is dropped.
func New(code Code, message string, kv ...any) *Error {
	e := &Error{Code: code, Message: message}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		e.With(key, kv[i+1])
	}
	return e
}

// Newf creates a structured error wrapping cause.
func Newf(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: cause}
}

// With adds a context value and returns the receiver.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Kind returns the kind of the error's code.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Code.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(" ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Context[k])
		}
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the cause and the sentinel of the code's kind, so
// errors.Is(err, ErrCorrupt) works regardless of the cause.
func (e *Error) Unwrap() []error {
	var errs []error
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if s := e.Code.sentinel(); s != nil {
		errs = append(errs, s)
	}
	return errs
}

// Clone returns a copy whose context map can be modified independently.
func (e *Error) Clone() *Error {
	if e == nil {
		return nil
	}
	c := *e
	if e.Context != nil {
		c.Context = make(map[string]any, len(e.Context))
		for k, v := range e.Context {
			c.Context[k] = v
		}
	}
	return &c
}

// CodeOf extracts the code of the first structured error in err's chain,
// falling back to the first typed error. It returns CodeOK for nil and
// CodeIOError for anything else.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var se *Error
	if As(err, &se) {
		return se.Code
	}
	var ce coded
	if As(err, &ce) {
		return ce.ErrorCode()
	}
	return CodeIOError
}
