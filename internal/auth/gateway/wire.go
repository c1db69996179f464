package gateway

import (
	"fmt"

	"github.com/dkellersch/authsandbox/internal/auth/domain"
)

// Provider wire names for challenge kinds. These appear in provider payloads
// and nowhere else; everything above the gateway works with
// domain.ChallengeKind.
const (
	WireEmailOTP         = "EMAIL_OTP"
	WireSoftwareTokenMFA = "SOFTWARE_TOKEN_MFA"
	WireSelectableMFA    = "MFAS_CAN_CHOOSE"
)

// Factor wire names used by provisioning and preference calls.
const (
	WireFactorTOTP  = "SOFTWARE_TOKEN_MFA"
	WireFactorEmail = "EMAIL_OTP"
)

// ChallengeKindFromWire maps a provider challenge name to the closed variant.
func ChallengeKindFromWire(name string) (domain.ChallengeKind, error) {
	switch name {
	case WireEmailOTP:
		return domain.EmailOTP, nil
	case WireSoftwareTokenMFA:
		return domain.SoftwareTokenMFA, nil
	case WireSelectableMFA:
		return domain.SelectableMFA, nil
	default:
		return 0, fmt.Errorf("unknown challenge name %q", name)
	}
}

// ChallengeKindToWire maps a challenge kind back to its provider name.
func ChallengeKindToWire(kind domain.ChallengeKind) string {
	switch kind {
	case domain.EmailOTP:
		return WireEmailOTP
	case domain.SoftwareTokenMFA:
		return WireSoftwareTokenMFA
	case domain.SelectableMFA:
		return WireSelectableMFA
	default:
		return ""
	}
}

// FactorKindToWire maps a factor kind to its provider name.
func FactorKindToWire(kind domain.FactorKind) string {
	switch kind {
	case domain.FactorTOTP:
		return WireFactorTOTP
	case domain.FactorEmail:
		return WireFactorEmail
	default:
		return ""
	}
}

// FactorKindFromWire maps a provider factor name to the closed variant.
func FactorKindFromWire(name string) (domain.FactorKind, error) {
	switch name {
	case WireFactorTOTP:
		return domain.FactorTOTP, nil
	case WireFactorEmail:
		return domain.FactorEmail, nil
	default:
		return 0, fmt.Errorf("unknown factor name %q", name)
	}
}
