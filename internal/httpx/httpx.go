package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

var (
	ErrInvalidPage  = errors.New("invalid page")
	ErrInvalidLimit = errors.New("invalid limit")
	ErrInvalidSort  = errors.New("invalid sortBy")
	ErrInvalidDate  = errors.New("invalid date range")
)

func DecodeJSON(body io.Reader, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("body must contain a single JSON object")
	}
	return nil
}

func ValidationDetails(errs validator.ValidationErrors) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	details := make(map[string]string, len(errs))
	for _, err := range errs {
		field := err.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		details[field] = err.Tag()
	}
	return details
}

// Page is a 1-based page request.
type Page struct {
	Page  int64
	Limit int64
}

func (p Page) Skip() int64 {
	return (p.Page - 1) * p.Limit
}

func ParsePage(values url.Values, defaultLimit, maxLimit int64) (Page, error) {
	page := Page{Page: 1, Limit: defaultLimit}

	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			return Page{}, ErrInvalidPage
		}
		page.Page = parsed
	}

	if raw := strings.TrimSpace(values.Get("limit")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			return Page{}, ErrInvalidLimit
		}
		page.Limit = parsed
	}

	if page.Limit > maxLimit {
		page.Limit = maxLimit
	}
	return page, nil
}

// Sort is a single sort key; Desc reverses the order.
type Sort struct {
	Field string
	Desc  bool
}

// ParseSort reads `sortBy=field:asc|desc`. Fields outside allowed are rejected.
func ParseSort(values url.Values, allowed map[string]string, fallback Sort) (Sort, error) {
	raw := strings.TrimSpace(values.Get("sortBy"))
	if raw == "" {
		return fallback, nil
	}
	name, dir, _ := strings.Cut(raw, ":")
	field, ok := allowed[strings.TrimSpace(name)]
	if !ok {
		return Sort{}, ErrInvalidSort
	}
	switch strings.ToLower(strings.TrimSpace(dir)) {
	case "", "asc":
		return Sort{Field: field}, nil
	case "desc":
		return Sort{Field: field, Desc: true}, nil
	default:
		return Sort{}, ErrInvalidSort
	}
}

// ParseDateRange reads startDate/endDate as RFC3339 or YYYY-MM-DD. A bare end date covers the whole day.
func ParseDateRange(values url.Values, loc *time.Location) (start, end *time.Time, err error) {
	if raw := strings.TrimSpace(values.Get("startDate")); raw != "" {
		t, err := parseDate(raw, loc, false)
		if err != nil {
			return nil, nil, ErrInvalidDate
		}
		start = &t
	}
	if raw := strings.TrimSpace(values.Get("endDate")); raw != "" {
		t, err := parseDate(raw, loc, true)
		if err != nil {
			return nil, nil, ErrInvalidDate
		}
		end = &t
	}
	if start != nil && end != nil && end.Before(*start) {
		return nil, nil, ErrInvalidDate
	}
	return start, end, nil
}

func parseDate(raw string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, loc)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
