package adminhttp

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/log"
	"github.com/keithlinneman/linnemanlabs-siteadmin/internal/siteerr"
)

// StatusFor maps a domain error kind onto an HTTP status.
func StatusFor(k siteerr.Kind) int {
	switch k {
	case siteerr.KindInput:
		return http.StatusBadRequest
	case siteerr.KindNotFound:
		return http.StatusNotFound
	case siteerr.KindConflict:
		return http.StatusConflict
	case siteerr.KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeError renders domain errors as their JSON form. Anything else is
// logged and hidden behind a generic internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	se, ok := siteerr.As(err)
	if !ok || se.Code.Kind() == siteerr.KindInternal {
		log.FromContext(ctx).Error(ctx, err, "admin request failed")
		writeJSON(w, http.StatusInternalServerError, siteerr.New(siteerr.CodeInternal, "internal error"))
		return
	}
	writeJSON(w, StatusFor(se.Code.Kind()), se)
}

// decode reads a single JSON value from the body. Unknown fields are
// refused unless the target is a free-form map.
func decode(r *http.Request, v any, strict bool) error {
	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			return siteerr.Newf(siteerr.CodeRequestInvalid, "request body exceeds %d bytes", tooBig.Limit)
		case errors.Is(err, io.EOF):
			return siteerr.Wrap(err, siteerr.CodeRequestInvalid, "request body is empty")
		default:
			return siteerr.Wrap(err, siteerr.CodeRequestInvalid, "malformed JSON body: "+strings.TrimPrefix(err.Error(), "json: "))
		}
	}
	if dec.More() {
		return siteerr.New(siteerr.CodeRequestInvalid, "request body must hold a single JSON value")
	}
	return nil
}

// decodeOptional is decode for endpoints where no body at all is valid.
// Chunked requests report ContentLength -1, so emptiness is only known
// once the decoder hits EOF.
func decodeOptional(r *http.Request, v any, strict bool) error {
	if err := decode(r, v, strict); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
