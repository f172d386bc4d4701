package mfa

import "errors"

var (
	// ErrAlreadyEnrolled indicates the user already has an active MFA secret;
	// it must be disabled before re-enrolling.
	ErrAlreadyEnrolled = errors.New("mfa already enrolled")
	// ErrNotEnrolled indicates the operation requires an active MFA secret.
	ErrNotEnrolled = errors.New("mfa not enrolled")
	// ErrInvalidCode indicates the submitted one-time code did not match.
	ErrInvalidCode = errors.New("invalid one-time code")
	// ErrAuthenticationFailed indicates a login challenge failed. It covers
	// both a wrong TOTP code and a wrong recovery code so callers cannot
	// learn which factor was attempted.
	ErrAuthenticationFailed = errors.New("second factor authentication failed")
	// ErrDecryption indicates the stored secret could not be decrypted.
	// This is an integrity fault, never a retryable "wrong code".
	ErrDecryption = errors.New("stored secret decryption failed")
	// ErrEncoding indicates a provisioning URI could not be rendered.
	ErrEncoding = errors.New("provisioning image encoding failed")
	// ErrDeviceNotFound indicates no trusted device matched the given prefix.
	ErrDeviceNotFound = errors.New("trusted device not found")
)
