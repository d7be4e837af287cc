package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"slotkeeper/pkg/config"
	apperrors "slotkeeper/pkg/errors"
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64 = 0
	if s := query.Get("offset"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = v
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	return limit, offset, nil
}

// DecodeJSON reads a JSON request body into dst. An empty body is accepted
// when allowEmpty is set, so that endpoints with only optional fields work
// without a payload.
func DecodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperrors.New(apperrors.CodeBadRequest, "Request body too large", http.StatusRequestEntityTooLarge)
		}
		return apperrors.InvalidInput("Invalid request body: " + err.Error())
	}
	return nil
}

// ReadBody returns the raw request body, for callers that must verify a
// signature over the exact bytes before decoding.
func ReadBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, apperrors.New(apperrors.CodeBadRequest, "Request body too large", http.StatusRequestEntityTooLarge)
		}
		return nil, apperrors.InvalidInput("Failed to read request body")
	}
	return body, nil
}
