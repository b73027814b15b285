/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package controlplane

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// statusError carries the HTTP status of a rejected management API call so
// callers can map service rejections onto the workflow's error taxonomy.
type statusError struct {
	code    int
	status  string
	message string
}

func newStatusError(resp *http.Response) *statusError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := string(bytes.TrimSpace(raw))

	// The service wraps its messages as {"message": "..."}; fall back to
	// the raw body for anything else.
	var wrapped struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Message != "" {
		msg = wrapped.Message
	}

	return &statusError{code: resp.StatusCode, status: resp.Status, message: msg}
}

func (e *statusError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("management service: %s", e.status)
	}
	return fmt.Sprintf("management service: %s: %s", e.status, e.message)
}

// asStatus unwraps err into a *statusError.
func asStatus(err error, target **statusError) bool {
	return errors.As(err, target)
}
