package desensitize

const mask = "******"

var (
	// AccessTokenRule 访问令牌字段（后端响应）
	AccessTokenRule = MustNewFieldRule("access_token", "accessToken", mask)

	// AccessTokenKeyRule 凭据存储键名形式
	AccessTokenKeyRule = MustNewFieldRule("access_token_key", "access_token", mask)

	// RefreshTokenRule 刷新令牌字段
	RefreshTokenRule = MustNewFieldRule("refresh_token", "refreshToken", mask)

	// RefreshTokenKeyRule 凭据存储键名形式
	RefreshTokenKeyRule = MustNewFieldRule("refresh_token_key", "refresh_token", mask)

	// TokenRule 旧版单令牌字段
	TokenRule = MustNewFieldRule("token", "token", mask)

	// PasswordRule 密码字段
	PasswordRule = MustNewFieldRule("password", "password", mask)

	// BearerRule Authorization 头中的 Bearer 凭据 (Bearer eyJhbGci... -> Bearer ******)
	BearerRule = MustNewContentRule("bearer", `(?i)(bearer\s+)[A-Za-z0-9\-._~+/]+=*`, "${1}"+mask)

	// EmailRule 邮箱脱敏规则 (user@example.com -> u***r@e***.com)
	EmailRule = MustNewContentRule(
		"email",
		`\b([A-Za-z0-9])[A-Za-z0-9._%+-]*([A-Za-z0-9])@([A-Za-z0-9])[A-Za-z0-9.-]*\.([A-Za-z]{2,})\b`,
		"$1***$2@$3***.$4",
	)
)

// BuiltinRules 返回会话相关的内置规则，邮箱默认不脱敏（登录排障需要）
func BuiltinRules() []Rule {
	return []Rule{
		AccessTokenRule,
		AccessTokenKeyRule,
		RefreshTokenRule,
		RefreshTokenKeyRule,
		TokenRule,
		PasswordRule,
		BearerRule,
	}
}
