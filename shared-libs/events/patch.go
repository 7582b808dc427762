package events

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"

	sharederrors "github.com/sammy-9930/Microservice-Based-Order-And-User-Management/shared-libs/errors"
)

// DecodeUpdateFields parses a partial update body that may only carry emails and deliveryAddress.
// Any other key is rejected by name and explicit nulls are rejected for the field they occupy.
// Every failure is a validation error.
func DecodeUpdateFields(body io.Reader) (UpdateFields, error) {
	var (
		fields UpdateFields
		raw    map[string]json.RawMessage
	)
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fields, sharederrors.Validation("body", "payload too large")
		}
		return fields, sharederrors.Validation("body", "invalid request body")
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k != "emails" && k != "deliveryAddress" {
			return fields, sharederrors.Validation(k, "Invalid field: "+k)
		}
	}

	if value, ok := raw["emails"]; ok {
		if isNull(value) {
			return fields, sharederrors.Validation("emails", "emails must not be null")
		}
		var emails []string
		if err := json.Unmarshal(value, &emails); err != nil {
			return fields, sharederrors.Validation("emails", "emails must be a list of strings")
		}
		fields.Emails = Some(emails)
	}

	if value, ok := raw["deliveryAddress"]; ok {
		if isNull(value) {
			return fields, sharederrors.Validation("deliveryAddress", "deliveryAddress must not be null")
		}
		var addr Address
		if err := json.Unmarshal(value, &addr); err != nil {
			return fields, sharederrors.Validation("deliveryAddress", "deliveryAddress must be an object")
		}
		fields.DeliveryAddress = Some(addr)
	}

	if fields.Empty() {
		return fields, sharederrors.Validation("", "Either 'emails' or 'deliveryAddress' is required")
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}
