package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string  `json:"code"`
	Message   string  `json:"message"`
	Required  *int    `json:"required,omitempty"`
	Available *int    `json:"available,omitempty"`
	Remaining *int    `json:"remaining,omitempty"`
	ResetAt   *string `json:"resetAt,omitempty"`
}

// WriteError writes {"error":{"code","message"}} with status.
func WriteError(w http.ResponseWriter, r *http.Request, status int, detail ErrorDetail) {
	if r != nil {
		SetErrorCode(r.Context(), detail.Code)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: detail})
}
