// Package authorizer attaches bearer credentials to outgoing API calls and
// renews them when the server rejects them.
//
// Transport is an http.RoundTripper. For every request it:
//
//   - passes calls to unauthenticated endpoints (login, verify-code,
//     resend-code, refresh) through untouched;
//   - attaches "Authorization: Bearer <access token>" from the credential store;
//   - on a first 401, joins the single in-flight refresh (starting it if none is
//     running), then replays the request exactly once with the new token.
//
// When the refresh cannot succeed (no refresh token, or the server rejects it)
// the credential store is cleared, session-ended hooks run, the redirect policy
// is applied and every waiting caller receives its own original 401 response.
// A 401 with no stored session only applies the redirect policy.
package authorizer
