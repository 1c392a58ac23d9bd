package domain

import "time"

// PolicyState tracks whether an org override is present.
type PolicyState int32

const (
	PolicyStateUnspecified PolicyState = iota
	PolicyStateActive
	PolicyStateRemoved
)

// SecondFactorType values a login policy can enable.
type SecondFactorType int32

const (
	SecondFactorTypeUnspecified SecondFactorType = iota
	SecondFactorTypeTOTP
	SecondFactorTypeU2F
	SecondFactorTypeOTPEmail
	SecondFactorTypeOTPSMS
)

// MultiFactorType values a login policy can enable.
type MultiFactorType int32

const (
	MultiFactorTypeUnspecified MultiFactorType = iota
	MultiFactorTypeU2FWithPIN
	MultiFactorTypeTOTP
)

// PasskeysType toggles passwordless login.
type PasskeysType int32

const (
	PasskeysTypeNotAllowed PasskeysType = iota
	PasskeysTypeAllowed
)

// LoginPolicy values (instance default or org override).
type LoginPolicy struct {
	AllowUsernamePassword      bool
	AllowRegister              bool
	AllowExternalIDP           bool
	ForceMFA                   bool
	ForceMFALocalOnly          bool
	HidePasswordReset          bool
	IgnoreUnknownUsernames     bool
	AllowDomainDiscovery       bool
	DefaultRedirectURI         string
	PasswordCheckLifetime      time.Duration
	ExternalLoginCheckLifetime time.Duration
	MFAInitSkipLifetime        time.Duration
	SecondFactorCheckLifetime  time.Duration
	MultiFactorCheckLifetime   time.Duration
	PasswordlessType           PasskeysType
	SecondFactors              []SecondFactorType
	MultiFactors               []MultiFactorType
}

// PasswordComplexityPolicy values.
type PasswordComplexityPolicy struct {
	MinLength    uint64
	HasLowercase bool
	HasUppercase bool
	HasNumber    bool
	HasSymbol    bool
}

// Check validates a candidate password against the policy.
func (p PasswordComplexityPolicy) Check(password string) (ok bool, missing []string) {
	if uint64(len(password)) < p.MinLength {
		missing = append(missing, "min_length")
	}
	var lower, upper, number, symbol bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			number = true
		default:
			symbol = true
		}
	}
	if p.HasLowercase && !lower {
		missing = append(missing, "lowercase")
	}
	if p.HasUppercase && !upper {
		missing = append(missing, "uppercase")
	}
	if p.HasNumber && !number {
		missing = append(missing, "number")
	}
	if p.HasSymbol && !symbol {
		missing = append(missing, "symbol")
	}
	return len(missing) == 0, missing
}

// PasswordAgePolicy values.
type PasswordAgePolicy struct {
	ExpireWarnDays uint64
	MaxAgeDays     uint64
}

// LockoutPolicy values.
type LockoutPolicy struct {
	MaxPasswordAttempts uint64
	MaxOTPAttempts      uint64
	ShowLockOutFailures bool
}

// DomainPolicy values.
type DomainPolicy struct {
	UserLoginMustBeDomain                  bool
	ValidateOrgDomains                     bool
	SMTPSenderAddressMatchesInstanceDomain bool
}

// PrivacyPolicy values.
type PrivacyPolicy struct {
	TOSLink        string
	PrivacyLink    string
	HelpLink       string
	SupportEmail   string
	DocsLink       string
	CustomLink     string
	CustomLinkText string
}

// SecurityPolicy values (iframe embedding and impersonation controls).
type SecurityPolicy struct {
	EnableIframeEmbedding bool
	AllowedOrigins        []string
	EnableImpersonation   bool
}

// LabelPolicy values (branding).
type LabelPolicy struct {
	PrimaryColor        string
	BackgroundColor     string
	WarnColor           string
	FontColor           string
	PrimaryColorDark    string
	BackgroundColorDark string
	WarnColorDark       string
	FontColorDark       string
	HideLoginNameSuffix bool
	ErrorMsgPopup       bool
	DisableWatermark    bool
}
