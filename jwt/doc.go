// Package jwt issues and verifies the signed access and refresh tokens.
//
// Tokens carry the owner id in "sub", the role, a "typ" claim separating the
// two kinds, and a random "jti". Verification failures are reduced to three
// classes: ErrMalformed, ErrBadSignature, and ErrExpired.
package jwt
