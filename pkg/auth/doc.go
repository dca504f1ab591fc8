// Package auth handles Gazette accounts and credentials.
//
// # Accounts
//
// Service.Signup stores a bcrypt password hash and the base stored role
// (user). Service.Authenticate verifies an email/password pair and returns
// ErrInvalidCredentials for both unknown emails and wrong passwords.
//
//	svc := auth.NewService(store, logger)
//	user, err := svc.Authenticate(ctx, req.Email, req.Password)
//	if errors.Is(err, auth.ErrInvalidCredentials) {
//		httputil.WriteUnauthorized(w, "invalid email or password")
//		return
//	}
//
// # Session tokens
//
// NewSessionToken mints opaque tokens of the form
// gz_<base64url(32 random bytes)>. Only the SHA-256 hash is persisted.
//
// # Audit
//
// AuditLogger writes security events (logins, role changes, session
// revocations) to the structured log with audit=true.
package auth
