package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/genflow/internal/domain"
)

// getPathUUID extracts a UUID from the URL path parameters.
// It parses and validates the UUID, handling common error cases.
//
// Parameters:
//   - r: The HTTP request
//   - paramName: The name of the path parameter to extract
//
// Returns:
//   - (uuid.UUID, nil): The parsed UUID if valid
//   - (uuid.UUID{}, error): A zero UUID and appropriate error if parameter is missing or invalid
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrInvalidID)
	}

	return id, nil
}

// present reports whether the field was sent with a non-null value.
func present(fields map[string]json.RawMessage, name string) bool {
	raw, ok := fields[name]
	return ok && string(raw) != "null"
}

// stringField decodes an optional string member. ok is false when the
// member is missing or null; err is set when it is not a string.
func stringField(fields map[string]json.RawMessage, name, message string) (value string, ok bool, err error) {
	if !present(fields, name) {
		return "", false, nil
	}
	if err := json.Unmarshal(fields[name], &value); err != nil {
		return "", false, domain.NewValidationError("", message, domain.ErrValidation)
	}
	return value, true, nil
}

// objectField returns an optional JSON object member.
func objectField(fields map[string]json.RawMessage, name, message string) (json.RawMessage, bool, error) {
	if !present(fields, name) {
		return nil, false, nil
	}
	if !domain.IsJSONObject(fields[name]) {
		return nil, false, domain.NewValidationError("", message, domain.ErrValidation)
	}
	return fields[name], true, nil
}
