package service

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/hospicore/auth-system/internal/core/ports"
)

// The registration and OTP endpoints answer with bare strings, JSON-encoded
// strings, or loosely-typed objects, depending on backend code path. The
// normalizers below are the single place that tolerance lives; everything
// past them deals in ports.AuthResult.

const (
	SentinelRegistered  = "User registered successfully. Please check your email for OTP."
	SentinelOTPVerified = "Account activated successfully"
	SentinelOTPResent   = "New OTP sent to your email"

	msgRegisterFailed  = "Đăng ký thất bại"
	msgVerifyOTPFailed = "Xác thực OTP thất bại"
	msgResendOTPFailed = "Gửi lại OTP thất bại"
)

// NormalizeRegister interprets a register response. Success is the exact
// sentinel, any string containing "successfully", or an object with a truthy
// success field or a 2xx status field.
func NormalizeRegister(raw []byte) ports.AuthResult {
	return normalize(raw, SentinelRegistered, "successfully", msgRegisterFailed)
}

// NormalizeVerifyOTP interprets a verify-otp response.
func NormalizeVerifyOTP(raw []byte) ports.AuthResult {
	return normalize(raw, SentinelOTPVerified, "successfully", msgVerifyOTPFailed)
}

// NormalizeResendOTP interprets a resend-otp response; "sent" anywhere in a
// string response counts as success.
func NormalizeResendOTP(raw []byte) ports.AuthResult {
	return normalize(raw, SentinelOTPResent, "sent", msgResendOTPFailed)
}

func normalize(raw []byte, sentinel, substring, failureMsg string) ports.AuthResult {
	if s, ok := asString(raw); ok {
		if s == sentinel || strings.Contains(s, substring) {
			return ports.AuthResult{Success: true, Message: s}
		}
		return ports.AuthResult{Message: failureMsg}
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil && obj != nil {
		if truthy(obj["success"]) || statusOK(obj["status"]) {
			msg, _ := obj["message"].(string)
			if msg == "" {
				msg = sentinel
			}
			return ports.AuthResult{Success: true, Message: msg}
		}
	}
	return ports.AuthResult{Message: failureMsg}
}

// asString extracts a string response: either a JSON-encoded string or a
// plain-text body that is not valid JSON at all.
func asString(raw []byte) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", false
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return string(trimmed), true
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return "", false
}

// truthy mirrors the loose truthiness the backend's clients historically
// applied to the success field.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != "" && !strings.EqualFold(t, "false")
	default:
		return false
	}
}

func statusOK(v any) bool {
	n, ok := v.(float64)
	return ok && n >= 200 && n < 300
}
