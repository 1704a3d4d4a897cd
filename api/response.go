// Copyright (C) 2020-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api implements the envelope both the Agent and Node HTTP
// servers wrap their responses in: {success, result} on success,
// {success: false, error: {code, message}} on failure.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Response is the envelope every Agent/Node HTTP endpoint returns.
type Response struct {
	Success bool        `json:"success"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error is the body of a failed Response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteError writes an error response
func WriteError(w http.ResponseWriter, status int, err error) error {
	return WriteJSON(w, status, Response{
		Success: false,
		Error: &Error{
			Code:    status,
			Message: err.Error(),
		},
	})
}

// WriteSuccess writes a success response
func WriteSuccess(w http.ResponseWriter, result interface{}) error {
	return WriteJSON(w, http.StatusOK, Response{
		Success: true,
		Result:  result,
	})
}

// ErrBadRequest is returned when a webhook or gossip body fails to
// decode or fails basic shape validation.
var ErrBadRequest = errors.New("bad request")

// ErrUnauthorized is returned when a webhook's platform secret, or a
// SignedMessage's owner signature, fails to authenticate.
var ErrUnauthorized = errors.New("unauthorized")

// ErrForbidden is returned when an execute token is missing or wrong,
// or a node is not among a message's K selected targets.
var ErrForbidden = errors.New("forbidden")

// ErrRateLimited is returned when /webhook traffic exceeds the
// Agent's configured rate limit.
var ErrRateLimited = errors.New("rate limited")