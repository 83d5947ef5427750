package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"taskboard-server/internal/service"
	"taskboard-server/pkg/response"

	"github.com/sirupsen/logrus"
)

// writeError maps service errors onto status codes. Anything unmapped is
// logged and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.BadRequest(w, detail(err, service.ErrValidation))
	case errors.Is(err, service.ErrUnauthorized):
		response.Unauthorized(w, detail(err, service.ErrUnauthorized))
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(w, detail(err, service.ErrNotFound))
	case errors.Is(err, service.ErrConflict):
		response.Conflict(w, detail(err, service.ErrConflict))
	default:
		log.WithError(err).WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("internal error")
		response.InternalError(w, "Internal server error")
	}
}

// detail strips the sentinel prefix from a wrapped error message.
func detail(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
		return rest
	}
	return msg
}

// decodeJSON reads a JSON body. An empty body is accepted when optional
// is set.
func decodeJSON(r *http.Request, v interface{}, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return nil
	}
	return err
}
