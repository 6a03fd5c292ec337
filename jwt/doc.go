// Package jwt wraps golang-jwt/v5 with the token payload used by otpAuth:
// {id, user_id, device_id, exp, type}, signed HS256 with a process-wide
// secret. Signed strings are bearer-shaped but never sufficient on their
// own; the engine always confirms the backing record before trusting one.
package jwt
