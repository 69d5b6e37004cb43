// Package common contains shared constants, sentinel errors and small helpers
// used across BANTX server and client components.
package common

// AccessTokenHeaderName is the gRPC metadata key that may carry a raw access
// token when the caller cannot set an Authorization header.
const AccessTokenHeaderName = "access_token"

// AuthorizationHeaderName carries "Bearer <token>" on HTTP requests and in
// gRPC metadata.
const AuthorizationHeaderName = "authorization"

// RefreshTokenCookieName is the HttpOnly cookie holding the refresh token.
const RefreshTokenCookieName = "refreshToken"
