package middleware

import "context"

type userIDKey struct{}

type serviceCallerKey struct{}

type requestInfoKey struct{}

// WithUserID stores the authenticated user id. Called by the auth middleware.
func WithUserID(ctx context.Context, userID string) context.Context {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.userID = userID
	}
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID returns the authenticated user id, or "" for anonymous callers.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithServiceCaller marks the request as coming from a trusted internal service.
func WithServiceCaller(ctx context.Context) context.Context {
	return context.WithValue(ctx, serviceCallerKey{}, true)
}

// IsServiceCaller reports whether the request carried a valid service API key.
func IsServiceCaller(ctx context.Context) bool {
	v, _ := ctx.Value(serviceCallerKey{}).(bool)
	return v
}

// requestInfo is filled in by handlers further down the chain and read back by Logging.
type requestInfo struct {
	userID    string
	errorCode string
}

func withRequestInfo(ctx context.Context) (context.Context, *requestInfo) {
	info := &requestInfo{}
	return context.WithValue(ctx, requestInfoKey{}, info), info
}

// SetErrorCode records the error code of the response for the request log.
func SetErrorCode(ctx context.Context, code string) {
	if info, ok := ctx.Value(requestInfoKey{}).(*requestInfo); ok {
		info.errorCode = code
	}
}
