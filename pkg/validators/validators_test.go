package validators_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nordlys-id/nordlys/pkg/apperr"
	"github.com/nordlys-id/nordlys/pkg/validators"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"alice@example.com", false},
		{"a.b+tag@sub.example.co", false},
		{"", true},
		{"not-an-email", true},
		{"missing@tld", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			err := validators.Email(tt.value, "T-001")
			if tt.wantErr {
				assert.True(t, apperr.IsInvalidArgument(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPhone(t *testing.T) {
	assert.NoError(t, validators.Phone("+41791234567", "T-002"))
	assert.Error(t, validators.Phone("0791234567", "T-002"))
	assert.Error(t, validators.Phone("+41", "T-002"))
	assert.Error(t, validators.Phone("+41abc", "T-002"))
}

func TestHTTPSURL(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"https://rp.example.com/cb", false},
		{"http://localhost:8080/cb", false},
		{"http://127.0.0.1/cb", false},
		{"http://example.com/cb", true},
		{"ftp://example.com", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			err := validators.HTTPSURL(tt.value, "T-003")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDomain(t *testing.T) {
	assert.NoError(t, validators.Domain("acme.example.com", "T-004"))
	assert.Error(t, validators.Domain("", "T-004"))
	assert.Error(t, validators.Domain("not a domain", "T-004"))
}
