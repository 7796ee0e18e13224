package cache

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "valid", input: "site-v2", wantErr: nil},
		{name: "empty", input: "", wantErr: ErrInvalidName},
		{name: "whitespace", input: "   ", wantErr: ErrInvalidName},
		{name: "newline", input: "v1\nv2", wantErr: ErrInvalidName},
		{name: "too long", input: strings.Repeat("a", MaxNameLength+1), wantErr: ErrNameTooLong},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateName(tc.input)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateName(%q) = %v, want %v", tc.input, err, tc.wantErr)
			}
		})
	}
}

func TestNewEntry_DuplicatesBody(t *testing.T) {
	key, _ := NewKey(http.MethodGet, "https://example.com/index.html")
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       io.NopCloser(strings.NewReader("<h1>hi</h1>")),
	}

	entry, dup, err := NewEntry(key, resp, TypeBasic)
	if err != nil {
		t.Fatalf("NewEntry failed: %v", err)
	}

	if string(entry.Body) != "<h1>hi</h1>" {
		t.Errorf("entry body = %q", entry.Body)
	}
	if entry.Type != TypeBasic {
		t.Errorf("entry type = %q, want basic", entry.Type)
	}
	if entry.StoredAt.IsZero() {
		t.Error("StoredAt should be set")
	}

	got, err := io.ReadAll(dup.Body)
	if err != nil {
		t.Fatalf("read duplicate: %v", err)
	}
	if string(got) != "<h1>hi</h1>" {
		t.Errorf("duplicate body = %q", got)
	}
	if dup.ContentLength != int64(len(got)) {
		t.Errorf("duplicate ContentLength = %d, want %d", dup.ContentLength, len(got))
	}

	// Mutating the response header must not leak into the entry.
	dup.Header.Set("Content-Type", "text/plain")
	if entry.Header.Get("Content-Type") != "text/html" {
		t.Error("entry header shares storage with the response")
	}
}

func TestNewEntry_NilResponse(t *testing.T) {
	_, _, err := NewEntry(Key{}, nil, TypeError)
	if !errors.Is(err, ErrNilEntry) {
		t.Errorf("expected ErrNilEntry, got %v", err)
	}
}

var errBodyCut = errors.New("connection reset")

// truncatedBody yields data and then fails.
type truncatedBody struct {
	r io.Reader
}

func (b *truncatedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if err == io.EOF {
		return n, errBodyCut
	}
	return n, err
}

func (*truncatedBody) Close() error { return nil }

func TestNewEntry_BodyReadError(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       &truncatedBody{r: strings.NewReader("<h1>par")},
	}

	entry, dup, err := NewEntry(Key{}, resp, TypeBasic)
	if !errors.Is(err, errBodyCut) {
		t.Fatalf("err = %v, want errBodyCut", err)
	}
	if entry != nil {
		t.Errorf("entry = %+v, want nil", entry)
	}
	if dup == nil {
		t.Fatal("replacement response is nil")
	}
	if dup.StatusCode != http.StatusOK {
		t.Errorf("status = %d", dup.StatusCode)
	}
	got, readErr := io.ReadAll(dup.Body)
	if string(got) != "<h1>par" {
		t.Errorf("body = %q, want the bytes read", got)
	}
	if !errors.Is(readErr, errBodyCut) {
		t.Errorf("read error = %v, want errBodyCut", readErr)
	}
}

func TestEntry_ResponseIsIndependent(t *testing.T) {
	entry := &Entry{
		StatusCode: http.StatusOK,
		Header:     http.Header{"X-Test": []string{"1"}},
		Body:       []byte("payload"),
		Type:       TypeBasic,
	}

	r1 := entry.Response(nil)
	r2 := entry.Response(nil)

	b1, _ := io.ReadAll(r1.Body)
	b2, _ := io.ReadAll(r2.Body)
	if string(b1) != "payload" || string(b2) != "payload" {
		t.Errorf("bodies = %q, %q", b1, b2)
	}
	if r1.StatusCode != http.StatusOK || r1.Status != "200 OK" {
		t.Errorf("status = %d %q", r1.StatusCode, r1.Status)
	}

	r1.Header.Set("X-Test", "changed")
	if entry.Header.Get("X-Test") != "1" {
		t.Error("response header shares storage with entry")
	}
}

func TestEntry_Clone(t *testing.T) {
	entry := &Entry{Body: []byte("abc"), Header: http.Header{"A": []string{"b"}}}
	c := entry.Clone()
	c.Body[0] = 'z'
	c.Header.Set("A", "c")

	if string(entry.Body) != "abc" {
		t.Errorf("clone shares body: %q", entry.Body)
	}
	if entry.Header.Get("A") != "b" {
		t.Error("clone shares header")
	}
	if (*Entry)(nil).Clone() != nil {
		t.Error("nil clone should be nil")
	}
	if entry.Size() != 3 {
		t.Errorf("Size() = %d, want 3", entry.Size())
	}
}
