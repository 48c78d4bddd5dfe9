package db

import (
	"context"
	"database/sql"
	"fmt"
)

// APIRequestParams is one logged HTTP round trip to an external service.
type APIRequestParams struct {
	Provider        string
	Method          string
	URL             string
	RequestHeaders  sql.NullString
	RequestBody     sql.NullString
	ResponseStatus  sql.NullInt64
	ResponseHeaders sql.NullString
	ResponseBody    sql.NullString
	Error           sql.NullString
	DurationMs      sql.NullInt64
}

// InsertAPIRequest appends one API traffic log row.
func (s *Store) InsertAPIRequest(ctx context.Context, p APIRequestParams) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO api_requests (provider, method, url, request_headers, request_body,
			response_status, response_headers, response_body, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Provider, p.Method, p.URL, p.RequestHeaders, p.RequestBody,
		p.ResponseStatus, p.ResponseHeaders, p.ResponseBody, p.Error, p.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("inserting api request log: %w", err)
	}
	return nil
}
