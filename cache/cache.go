package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MaxNameLength is the maximum allowed length for a store name.
const MaxNameLength = 255

// Sentinel errors for cache operations.
var (
	ErrNilStorage   = errors.New("cache: storage is nil")
	ErrInvalidName  = errors.New("cache: store name is invalid")
	ErrNameTooLong  = errors.New("cache: store name exceeds max length")
	ErrInvalidKey   = errors.New("cache: request key is invalid")
	ErrNilEntry     = errors.New("cache: entry is nil")
	ErrStoreDeleted = errors.New("cache: store has been deleted")
	ErrClosed       = errors.New("cache: storage is closed")
)

// ResponseType describes how a response was delivered to the requester.
type ResponseType string

const (
	// TypeBasic is a direct same-origin response.
	TypeBasic ResponseType = "basic"
	// TypeCORS is a cross-origin response the origin explicitly shared.
	TypeCORS ResponseType = "cors"
	// TypeOpaque is a cross-origin response whose contents are not inspectable.
	TypeOpaque ResponseType = "opaque"
	// TypeOpaqueRedirect is a redirect that was not followed.
	TypeOpaqueRedirect ResponseType = "opaqueredirect"
	// TypeError is a network error.
	TypeError ResponseType = "error"
)

// Entry is a stored response.
type Entry struct {
	Key        Key
	StatusCode int
	Header     http.Header
	Body       []byte
	Type       ResponseType
	StoredAt   time.Time
}

// NewEntry buffers resp into an Entry. A response body can be read only once,
// so NewEntry also returns a replacement response carrying the same body for
// the caller to hand on. The original body is closed.
//
// When reading the body fails, NewEntry returns no entry, the read error and
// a replacement response whose body yields the bytes read and then that
// error.
func NewEntry(key Key, resp *http.Response, typ ResponseType) (*Entry, *http.Response, error) {
	if resp == nil {
		return nil, nil, ErrNilEntry
	}

	var body []byte
	if resp.Body != nil {
		b, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			dup := *resp
			dup.Body = io.NopCloser(io.MultiReader(bytes.NewReader(b), errReader{err}))
			return nil, &dup, fmt.Errorf("cache: read response body: %w", err)
		}
		body = b
	}

	entry := &Entry{
		Key:        key,
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
		Type:       typ,
		StoredAt:   time.Now().UTC(),
	}

	dup := *resp
	dup.Body = io.NopCloser(bytes.NewReader(body))
	dup.ContentLength = int64(len(body))
	return entry, &dup, nil
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Header = e.Header.Clone()
	if e.Body != nil {
		c.Body = append([]byte(nil), e.Body...)
	}
	return &c
}

// Size returns the number of body bytes held by the entry.
func (e *Entry) Size() int {
	if e == nil {
		return 0
	}
	return len(e.Body)
}

// Response builds a fresh response from the entry. Every call returns an
// independent body.
func (e *Entry) Response(req *http.Request) *http.Response {
	header := e.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", e.StatusCode, http.StatusText(e.StatusCode)),
		StatusCode:    e.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(e.Body)),
		ContentLength: int64(len(e.Body)),
		Request:       req,
	}
}

// Store is a single named collection of stored responses.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Writes to the same key are last-write-wins.
// - Match returns (nil, false, nil) on miss.
type Store interface {
	// Name returns the store name.
	Name() string

	// Match returns the entry stored under key.
	Match(ctx context.Context, key Key) (*Entry, bool, error)

	// Put stores entry under key, replacing any previous entry.
	Put(ctx context.Context, key Key, entry *Entry) error

	// Delete removes the entry under key and reports whether it existed.
	Delete(ctx context.Context, key Key) (bool, error)

	// Keys lists the keys currently stored.
	Keys(ctx context.Context) ([]Key, error)
}

// Storage is the set of named stores available to an interceptor.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Open creates the store on first use; Keys lists names in creation order.
// - Delete is idempotent and reports whether the store existed.
type Storage interface {
	Open(ctx context.Context, name string) (Store, error)
	Has(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) (bool, error)
	Keys(ctx context.Context) ([]string, error)

	// Match searches every store in creation order.
	Match(ctx context.Context, key Key) (*Entry, bool, error)

	Close() error
}

// ValidateName checks if name is usable as a store name.
func ValidateName(name string) error {
	if name == "" || strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	if len(name) > MaxNameLength {
		return ErrNameTooLong
	}
	if strings.ContainsAny(name, "\n\r\x00") {
		return ErrInvalidName
	}
	return nil
}
