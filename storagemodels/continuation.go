/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

package storagemodels

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

const continuationVersion = 1

// continuation is the position a query resumes from, serialized into an
// opaque token.
type continuation struct {
	Version int               `json:"v"`
	Key     map[string]string `json:"k"`
}

// EncodeContinuation turns the last evaluated key of a page into an opaque token.
// A nil or empty key yields the empty token.
func EncodeContinuation(lastKey map[string]string) (string, error) {
	if len(lastKey) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(continuation{Version: continuationVersion, Key: lastKey})
	if err != nil {
		return "", fmt.Errorf("failed to encode continuation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// DecodeContinuation parses a token produced by EncodeContinuation.
// The empty token decodes to a nil key.
func DecodeContinuation(token string) (map[string]string, error) {
	if token == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid continuation token format: %w", err)
	}
	var c continuation
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("invalid continuation token content: %w", err)
	}
	if c.Version != continuationVersion {
		return nil, fmt.Errorf("unsupported continuation token version: %d", c.Version)
	}
	if len(c.Key) == 0 {
		return nil, fmt.Errorf("continuation token carries no position")
	}
	return c.Key, nil
}
