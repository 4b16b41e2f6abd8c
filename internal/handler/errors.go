package handler

import (
	"errors"
	"net/http"

	customError "github.com/segyhp/peer-lending/pkg/errors"
	"github.com/segyhp/peer-lending/pkg/response"

	log "github.com/sirupsen/logrus"
)

// writeError maps err onto the response envelope. Client-facing errors
// become 400 with their own message; anything else is logged and hidden
// behind a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if msg := customError.PublicMessage(err); msg != "" {
		response.BadRequest(w, msg)
		return
	}

	log.WithError(err).WithFields(log.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": w.Header().Get("X-Request-ID"),
	}).Error("request failed")
	response.InternalServerError(w)
}

func hasCode(err error, code string) bool {
	var be *customError.BusinessError
	return errors.As(err, &be) && be.Code == code
}
