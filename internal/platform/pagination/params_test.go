package pagination

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params, err := Parse(url.Values{}, Options{})
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 0 {
		t.Fatalf("expected unbounded page size got %d", params.PageSize)
	}
	if params.PageToken != "" {
		t.Fatalf("expected empty page token got %q", params.PageToken)
	}
}

func TestParsePageSize(t *testing.T) {
	opts := Options{MaxPageSize: 40}
	values := url.Values{}
	values.Set("pageSize", "30")

	params, err := Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != 30 {
		t.Fatalf("expected page size 30 got %d", params.PageSize)
	}

	values.Set("pageSize", "400")
	params, err = Parse(values, opts)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if params.PageSize != opts.MaxPageSize {
		t.Fatalf("expected page size clamped to %d got %d", opts.MaxPageSize, params.PageSize)
	}
}

func TestParseInvalidPageSize(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-3"} {
		values := url.Values{}
		values.Set("pageSize", raw)
		if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageSize) {
			t.Fatalf("pageSize %q: expected ErrInvalidPageSize, got %v", raw, err)
		}
	}
}

func TestParseRejectsMalformedToken(t *testing.T) {
	values := url.Values{}
	values.Set("pageToken", "not base64!")
	if _, err := Parse(values, Options{}); !errors.Is(err, ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := EncodeToken(Cursor{StartAfter: []any{"2024-01-02T03:04:05Z", "ord_1"}})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	req := httptest.NewRequest("GET", "/orders?pageToken="+url.QueryEscape(token), nil)
	params, err := FromRequest(req, Options{})
	if err != nil {
		t.Fatalf("FromRequest returned error: %v", err)
	}
	cursor, err := DecodeToken(params.PageToken)
	if err != nil {
		t.Fatalf("DecodeToken returned error: %v", err)
	}
	if len(cursor.StartAfter) != 2 || cursor.StartAfter[1] != "ord_1" {
		t.Fatalf("unexpected cursor %#v", cursor.StartAfter)
	}
}

func TestEncodeEmptyCursor(t *testing.T) {
	token, err := EncodeToken(Cursor{})
	if err != nil {
		t.Fatalf("EncodeToken returned error: %v", err)
	}
	if token != "" {
		t.Fatalf("expected empty token, got %q", token)
	}
}
