package analyzer

import (
	"encoding/json"
	"fmt"
)

// decodePayload unmarshals a result message's payload into dst, giving
// a clearer error than a bare json error when the payload is absent.
func decodePayload(msg message, dst interface{}) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("result message carried no payload")
	}
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
