// Package validators holds field-level input validation shared by commands.
// Validation runs before any I/O; failures are INVALID_ARGUMENT errors with
// a stable id supplied by the caller.
package validators

import (
	"strings"

	"github.com/asaskevich/govalidator"

	"github.com/nordlys-id/nordlys/pkg/apperr"
)

// Required fails when value is empty after trimming.
func Required(value, field, errID string) error {
	if strings.TrimSpace(value) == "" {
		return apperr.ThrowInvalidArgumentf(nil, errID, "%s must not be empty", field)
	}
	return nil
}

// Email validates an email address.
func Email(value, errID string) error {
	if value == "" || !govalidator.IsEmail(value) {
		return apperr.ThrowInvalidArgument(nil, errID, "invalid email address")
	}
	return nil
}

// Phone validates an E.164 style phone number.
func Phone(value, errID string) error {
	v := strings.ReplaceAll(value, " ", "")
	if !strings.HasPrefix(v, "+") || !govalidator.IsNumeric(v[1:]) || len(v) < 8 || len(v) > 16 {
		return apperr.ThrowInvalidArgument(nil, errID, "invalid phone number, expected E.164 format")
	}
	return nil
}

// URL validates an absolute http(s) URL.
func URL(value, errID string) error {
	if value == "" || !govalidator.IsRequestURL(value) {
		return apperr.ThrowInvalidArgument(nil, errID, "invalid url")
	}
	return nil
}

// HTTPSURL validates an https URL, allowing plain http only for localhost.
func HTTPSURL(value, errID string) error {
	if err := URL(value, errID); err != nil {
		return err
	}
	if strings.HasPrefix(value, "https://") {
		return nil
	}
	if strings.HasPrefix(value, "http://localhost") ||
		strings.HasPrefix(value, "http://127.0.0.1") ||
		strings.HasPrefix(value, "http://[::1]") {
		return nil
	}
	return apperr.ThrowInvalidArgument(nil, errID, "url must use https")
}

// Domain validates a DNS domain name.
func Domain(value, errID string) error {
	if value == "" || !govalidator.IsDNSName(value) {
		return apperr.ThrowInvalidArgument(nil, errID, "invalid domain name")
	}
	return nil
}
