// Package oauth implements the OAuth2 Authorization Code operations used by
// the desktop sign-in flow, and the authenticated backend calls that share
// the provider's base URL.
//
// All operations are stateless. The authorization URL and the code exchange
// go through golang.org/x/oauth2 with client credentials sent in the request
// body (a public client has no secret). Userinfo, introspection, health and
// usage are plain JSON calls over the same HTTP client.
//
// Every call is bounded by the client's request timeout. Transport failures
// are reported as *NetworkError, whose Timeout field tells a slow backend
// apart from an unreachable one. Protocol failures have dedicated types:
// *TokenExchangeError, *UserInfoError, *IntrospectionError and *StatusError.
package oauth
