// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/teradata-labs/crucible/pkg/types"
)

// HTTPError is a non-2xx response from a provider.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Transient wraps err as a retryable connector failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &types.Error{Kind: types.KindConnectorTransient, Message: "transient connector failure", Cause: err}
}

// Permanent wraps err as a connector failure that retrying cannot fix
// (authentication, malformed request).
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &types.Error{Kind: types.KindConnectorPermanent, Message: "permanent connector failure", Cause: err}
}

// StatusError classifies an HTTP status. Auth failures and malformed
// requests are permanent; everything else, throttling and 5xx included,
// is transient.
func StatusError(status int, body string) error {
	herr := &HTTPError{StatusCode: status, Message: body}
	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusUnprocessableEntity:
		return Permanent(herr)
	default:
		return Transient(herr)
	}
}

// IsPermanent reports whether err must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, types.ErrConnectorPermanent)
}

// IsTransient reports whether err may succeed on retry. Errors that carry
// no classification count as transient, except context cancellation.
func IsTransient(err error) bool {
	if err == nil || IsPermanent(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
