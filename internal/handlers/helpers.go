package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zenkart/admin-api/internal/services"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var errBodyTooLarge = errors.New("request body too large")

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return body, nil
}

func decodeJSONBody(r *http.Request, limit int64, out any) error {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}

func parsePagination(query map[string][]string) (services.Pagination, error) {
	pager := services.Pagination{PageSize: defaultPageSize}

	if values, ok := query["page_size"]; ok && len(values) > 0 {
		raw := strings.TrimSpace(values[0])
		if raw != "" {
			size, err := strconv.Atoi(raw)
			if err != nil {
				return pager, errors.New("page_size must be an integer")
			}
			switch {
			case size <= 0:
				pager.PageSize = defaultPageSize
			case size > maxPageSize:
				pager.PageSize = maxPageSize
			default:
				pager.PageSize = size
			}
		}
	}

	if values, ok := query["page_token"]; ok && len(values) > 0 {
		pager.PageToken = strings.TrimSpace(values[0])
	}

	return pager, nil
}

func parseTimeParam(value string) (time.Time, error) {
	return time.Parse(time.RFC3339, strings.TrimSpace(value))
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

func formatTimePointer(ts *time.Time) string {
	if ts == nil {
		return ""
	}
	return formatTime(*ts)
}
