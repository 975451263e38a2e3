package session

import (
	"time"

	"github.com/kochabx/kais/auth"
)

// State 会话状态
type State int

const (
	Anonymous State = iota
	Authenticating
	Active
	Renewing
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Active:
		return "active"
	case Renewing:
		return "renewing"
	default:
		return "unknown"
	}
}

// Authenticated 该状态下请求是否可以携带访问令牌
func (s State) Authenticated() bool {
	return s == Active || s == Renewing
}

// Snapshot 会话只读视图
type Snapshot struct {
	State     State
	Profile   *auth.UserProfile
	Expiry    time.Time
	Renewable bool
	Scheduled bool
}

// Event 状态变化事件，由失败引起的变化会带上 Err
type Event struct {
	From State
	To   State
	Err  error
}

// Expired 是否因续期失败而销毁，需要重新登录
func (e Event) Expired() bool {
	return e.To == Anonymous && e.From.Authenticated() && e.Err != nil
}
