package provider

import (
	"fmt"
	"strings"
)

// handleSeparator joins model id and request id in queue handles.
const handleSeparator = "::"

// EncodeQueueHandle builds the handle for a queue job. Polling a queue
// provider needs the model id, so it travels inside the handle.
func EncodeQueueHandle(modelID, requestID string) string {
	return modelID + handleSeparator + requestID
}

// DecodeQueueHandle splits a queue handle on the last separator, so model ids
// that themselves contain the separator still round-trip.
func DecodeQueueHandle(handle string) (modelID, requestID string, err error) {
	i := strings.LastIndex(handle, handleSeparator)
	if i <= 0 || i+len(handleSeparator) == len(handle) {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidHandle, handle)
	}
	return handle[:i], handle[i+len(handleSeparator):], nil
}
