package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
)

const (
	defaultPage     = 1
	defaultPageSize = 10
	maxPageSize     = 1000

	// maxJSONBodyBytes bounds decoded JSON request bodies.
	maxJSONBodyBytes = 1 << 20
)

var errInvalidPagination = errors.New("invalid pagination parameters")

// decodeRequest decodes the JSON body of r into in.
func decodeRequest(r *http.Request, in any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	if err := dec.Decode(in); err != nil {
		return err
	}
	return nil
}

// respondJSON writes v as a JSON response with the status code.
func respondJSON(w http.ResponseWriter, log hclog.Logger, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("error encoding response", "error", err)
	}
}

// respondDetail writes a {"detail": msg} body.
func respondDetail(w http.ResponseWriter, log hclog.Logger, code int, msg string) {
	respondJSON(w, log, code, map[string]string{"detail": msg})
}

// respondError writes an {"error": msg} body.
func respondError(w http.ResponseWriter, log hclog.Logger, code int, msg string) {
	respondJSON(w, log, code, map[string]string{"error": msg})
}

func respondNotFound(w http.ResponseWriter, log hclog.Logger) {
	respondDetail(w, log, http.StatusNotFound, "Not found.")
}

func respondForbidden(w http.ResponseWriter, log hclog.Logger) {
	respondDetail(w, log, http.StatusForbidden,
		"You do not have permission to perform this action.")
}

func respondMethodNotAllowed(w http.ResponseWriter, log hclog.Logger, method string) {
	respondDetail(w, log, http.StatusMethodNotAllowed,
		fmt.Sprintf("Method %q not allowed.", method))
}

// fieldErrors converts validation errors into a {"field": ["message"]} body.
// ok is false if err is not a validation error.
func fieldErrors(err error) (body map[string][]string, ok bool) {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return nil, false
	}

	keys := make([]string, 0, len(verrs))
	for k := range verrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	body = make(map[string][]string, len(verrs))
	for _, k := range keys {
		body[k] = []string{verrs[k].Error() + "."}
	}
	return body, true
}

// pagination reads page and page_size query parameters.
func pagination(r *http.Request) (page, pageSize int, err error) {
	page, err = positiveIntParam(r, "page", defaultPage)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err = positiveIntParam(r, "page_size", defaultPageSize)
	if err != nil {
		return 0, 0, err
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	// The offset (page-1)*pageSize must fit a 32-bit integer.
	if page-1 > math.MaxInt32/pageSize {
		return 0, 0, errInvalidPagination
	}
	return page, pageSize, nil
}

func positiveIntParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errInvalidPagination
	}
	return n, nil
}

func totalPages(count int64, pageSize int) int64 {
	return (count + int64(pageSize) - 1) / int64(pageSize)
}
