package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/GregMSThompson/dashboard-service/internal/errs"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return errs.NewValidationError("invalid request body: " + err.Error())
	}
	return nil
}
