package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vibek01/ECOM-D1/internal/platform/auth"
	"github.com/vibek01/ECOM-D1/internal/platform/pagination"
	"github.com/vibek01/ECOM-D1/internal/services"
)

const (
	maxPageSize = 100
	maxBodySize = 64 * 1024
)

var (
	errBodyTooLarge = errors.New("request body too large")
	errInvalidJSON  = errors.New("invalid JSON body")
	errEmptyBody    = errors.New("request body is required")
)

// decodeJSONBody decodes a bounded JSON body. Unknown fields are ignored.
func decodeJSONBody(r *http.Request, limit int64, dst any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return errInvalidJSON
	}
	if int64(len(body)) > limit {
		return errBodyTooLarge
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return errEmptyBody
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errInvalidJSON
	}
	return nil
}

// parsePagination reads pageSize and pageToken. Without pageSize every item is returned.
func parsePagination(r *http.Request) (services.Pagination, error) {
	params, err := pagination.FromRequest(r, pagination.Options{MaxPageSize: maxPageSize})
	if err != nil {
		return services.Pagination{}, err
	}
	return services.Pagination{PageSize: params.PageSize, PageToken: params.PageToken}, nil
}

func identityFrom(r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return nil, false
	}
	return identity, true
}

// amount renders a decimal as a JSON number.
func amount(value decimal.Decimal) json.Number {
	return json.Number(value.String())
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
