package usercontext

// Session and Locals keys shared between the auth controllers, which write
// them at login, and UserContextMiddleware, which reads them on every request.
// Changing a value silently logs out every session issued before the change.
const (
	SessionAuthenticated = "authenticated"
	SessionUserID        = "user_id"
	SessionUsername      = "username"
	SessionIsAdmin       = "isAdmin"
	LocalsFromProtected  = "from_protected"
)
