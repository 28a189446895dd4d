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
	"strconv"
	"time"
)

// Endpoint params understood by every connector.
const (
	ParamPrePrompt    = "pre_prompt"
	ParamPostPrompt   = "post_prompt"
	ParamNumRetries   = "num_of_retries"
	ParamAllowRetries = "allow_retries"
	ParamTimeout      = "timeout"    // seconds
	ParamRetryBase    = "retry_base" // seconds
	ParamModel        = "model"
	ParamMaxTokens    = "max_tokens"
	ParamTemperature  = "temperature"
)

// ParamString returns params[key] as a string, or def.
func ParamString(params map[string]any, key, def string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return def
}

// ParamInt returns params[key] as an int, or def. JSON numbers and numeric
// strings are accepted.
func ParamInt(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// ParamFloat returns params[key] as a float64, or def.
func ParamFloat(params map[string]any, key string, def float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// ParamBool returns params[key] as a bool, or def.
func ParamBool(params map[string]any, key string, def bool) bool {
	switch v := params[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// ParamSeconds returns params[key], given in seconds, as a duration.
func ParamSeconds(params map[string]any, key string, def time.Duration) time.Duration {
	f := ParamFloat(params, key, -1)
	if f < 0 {
		return def
	}
	return time.Duration(f * float64(time.Second))
}
