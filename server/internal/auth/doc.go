// Package auth provides HTTP authentication middleware for the collector.
//
// Bearer(secret, next) requires "Authorization: Bearer <secret>" on every
// request. A missing, malformed, or wrong token is answered with 401 and a
// WWW-Authenticate challenge; next is not called. The comparison is constant
// time.
//
// When secret is empty all requests pass through, which is convenient for
// local development with authentication disabled.
package auth
