package auth

import "errors"

// 错误定义
var (
	ErrNotLoggedIn         = errors.New("not logged in")
	ErrNoRefreshToken      = errors.New("no refresh token")
	ErrRefreshRejected     = errors.New("refresh rejected")
	ErrStateMismatch       = errors.New("oauth state mismatch")
	ErrMissingCode         = errors.New("authorization code missing")
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrAudienceMissing     = errors.New("token audience missing, reconnect required")
	ErrConfigUnavailable   = errors.New("backend configuration unavailable")
	ErrLoginTimeout        = errors.New("login timed out")
)

// ReconnectNotice 令牌缺少 audience 时提示用户重新登录
const ReconnectNotice = "Please connect again to re-authenticate"
