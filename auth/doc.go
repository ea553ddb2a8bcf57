// Package auth provides account primitives for the SafeBite API (password
// hashing, session tokens, single use account tokens, bun repositories and
// fiber handlers).
//
// Session tokens:
//   - TokenService signs HS256 access and refresh tokens. Access tokens live
//     for the configured TTL, refresh tokens for seven days. Validation always
//     reports one of ErrTokenExpired, ErrTokenMalformed or ErrTokenUnverifiable
//     and refuses a token of the wrong type.
//
// Account tokens:
//   - AccountStateMachine drives the email verification and password reset
//     flows. Each flow stores a 64 character hex token plus a shared expiry on
//     the user row. Begin replaces any pending token, Inspect clears expired
//     ones, and Consume applies its effect in the same conditional update that
//     clears the token, so a token is accepted at most once.
//
// Commands:
//   - Every operation is a message plus a handler with Execute(ctx, msg).
//     Handlers run with a bounded context inside RepositoryManager.RunInTx and
//     return go-errors values that NewErrorHandler turns into JSON envelopes.
package auth
