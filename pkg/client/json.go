package client

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// json - replacement of the standard encoding/json library, it is faster for larger responses.
var json = jsoniter.ConfigCompatibleWithStandardLibrary //nolint:gochecknoglobals

// encodePayload encodes a request payload, nil is encoded as an empty object.
func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	out, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf(`cannot encode JSON payload: %w`, err)
	}
	return out, nil
}
