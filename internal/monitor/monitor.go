// Package monitor validates inbound API payloads against JSON schemas
// before they reach any payment logic, so malformed storefront requests are
// rejected with a description of what is wrong instead of failing deep in
// the gateway call.
package monitor

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// initiateRequestSchema describes the body of a hosted payment initiation
// request from the storefront. Amounts arrive in major units and are
// converted to minor units downstream.
const initiateRequestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["cart_id", "amount", "currency_code"],
  "properties": {
    "cart_id": {
      "type": "string",
      "minLength": 1
    },
    "amount": {
      "type": "number",
      "exclusiveMinimum": 0
    },
    "currency_code": {
      "type": "string",
      "minLength": 3,
      "maxLength": 3
    },
    "billing_address": {
      "type": "object",
      "properties": {
        "address_1": {"type": "string"},
        "address_2": {"type": "string"},
        "city": {"type": "string"},
        "postal_code": {"type": "string"},
        "country_code": {"type": "string"}
      }
    },
    "customer_email": {
      "type": "string",
      "minLength": 3
    },
    "success_url": {
      "type": "string",
      "minLength": 1
    },
    "failure_url": {
      "type": "string",
      "minLength": 1
    },
    "cko_token": {
      "type": "string"
    },
    "metadata": {
      "type": "object"
    }
  },
  "additionalProperties": true
}`

// ContractMonitor validates request bodies against a compiled JSON schema.
type ContractMonitor struct {
	schema *gojsonschema.Schema
}

// NewInitiateMonitor compiles the payment initiation request schema.
func NewInitiateMonitor() (*ContractMonitor, error) {
	return newMonitor(initiateRequestSchema)
}

func newMonitor(rawSchema string) (*ContractMonitor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(rawSchema))
	if err != nil {
		return nil, fmt.Errorf("error compiling schema: %w", err)
	}
	return &ContractMonitor{schema: schema}, nil
}

// Validate checks the given request body against the schema. It returns
// true if valid, or false and a list of validation errors if invalid.
func (cm *ContractMonitor) Validate(requestBody []byte) (bool, []string, error) {
	result, err := cm.schema.Validate(gojsonschema.NewBytesLoader(requestBody))
	if err != nil {
		return false, nil, fmt.Errorf("error during validation: %w", err)
	}

	if result.Valid() {
		return true, nil, nil
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return false, errs, nil
}

// FormatErrors joins validation errors into a single response message.
func FormatErrors(validationErrors []string) string {
	if len(validationErrors) == 0 {
		return ""
	}
	return "Validation errors: " + strings.Join(validationErrors, "; ")
}
