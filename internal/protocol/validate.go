package protocol

import (
	"encoding/json"
	"fmt"
)

// validClientTypes is the set of allowed client→server message types.
var validClientTypes = map[string]bool{
	TypeNavigationInitialize: true,
	TypeNavigationStart:      true,
	TypeLocationUpdate:       true,
	TypeNavigationStop:       true,
}

// ValidateClientMessage validates a raw JSON message from a client.
// Returns the parsed Message and any validation error.
func ValidateClientMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}

	if !validClientTypes[msg.Type] {
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}

	// Stop carries no data.
	if msg.Type == TypeNavigationStop {
		return &msg, nil
	}

	if msg.Payload == nil {
		return nil, fmt.Errorf("missing 'payload' field")
	}

	// Validate required payload fields per type.
	switch msg.Type {
	case TypeNavigationInitialize:
		var p InitializePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if err := ValidateInitialize(p); err != nil {
			return nil, fmt.Errorf("%w in %s payload", err, msg.Type)
		}

	case TypeNavigationStart:
		var p StartPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if err := ValidateStart(p); err != nil {
			return nil, fmt.Errorf("%w in %s payload", err, msg.Type)
		}

	case TypeLocationUpdate:
		var p LocationPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if err := ValidateLocation(p); err != nil {
			return nil, fmt.Errorf("%w in %s payload", err, msg.Type)
		}
	}

	return &msg, nil
}

// ValidateInitialize checks an initialize payload.
func ValidateInitialize(p InitializePayload) error {
	if p.AccessKeyID == "" {
		return fmt.Errorf("missing required field 'accessKeyId'")
	}
	return nil
}

// ValidateStart checks that both endpoints are present and in range.
func ValidateStart(p StartPayload) error {
	if err := validateCoordinate("origin", p.Origin.Lat, p.Origin.Lng); err != nil {
		return err
	}
	return validateCoordinate("destination", p.Destination.Lat, p.Destination.Lng)
}

// ValidateLocation checks that a location sample has an in-range position.
func ValidateLocation(p LocationPayload) error {
	return validateCoordinate("location", p.Lat, p.Lng)
}

func validateCoordinate(field string, lat, lng *float64) error {
	if lat == nil {
		return fmt.Errorf("missing required field '%s.lat'", field)
	}
	if lng == nil {
		return fmt.Errorf("missing required field '%s.lng'", field)
	}
	if *lat < -90 || *lat > 90 {
		return fmt.Errorf("field '%s.lat' out of range: %g", field, *lat)
	}
	if *lng < -180 || *lng > 180 {
		return fmt.Errorf("field '%s.lng' out of range: %g", field, *lng)
	}
	return nil
}

// NewErrorMessage creates an error message ready to send to the client.
func NewErrorMessage(code, message string) (*Message, error) {
	return NewMessage(TypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}
