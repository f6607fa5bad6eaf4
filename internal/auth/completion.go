package auth

import (
	"context"
	"net/url"
	"sync"
)

// Callback OAuth 重定向携带的参数
type Callback struct {
	Code             string `json:"code"`
	State            string `json:"state"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// CallbackFromQuery 从重定向 URL 的查询参数构造 Callback
func CallbackFromQuery(q url.Values) Callback {
	return Callback{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		Error:            q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
}

// Opener 打开授权页面（浏览器、日志、终端二维码等）
type Opener interface {
	Open(ctx context.Context, authorizeURL string) error
}

// OpenerFunc 函数适配器
type OpenerFunc func(ctx context.Context, authorizeURL string) error

func (f OpenerFunc) Open(ctx context.Context, authorizeURL string) error {
	return f(ctx, authorizeURL)
}

// Completion 等待授权完成
// 每次登录先 Arm，之前残留的回调随之丢弃；Disarm 只对同一次 Arm 生效
type Completion interface {
	Arm() uint64
	Disarm(gen uint64)
	Await(ctx context.Context) (Callback, error)
}

// ChannelCompletion 单消息通道，重定向处理器把回调投递进来
// 没有登录在等待时投递的回调直接丢弃
type ChannelCompletion struct {
	mu    sync.Mutex
	gen   uint64
	armed bool
	ch    chan Callback
}

// NewChannelCompletion 创建完成通道
func NewChannelCompletion() *ChannelCompletion {
	return &ChannelCompletion{ch: make(chan Callback, 1)}
}

// Arm 开始接收一次登录的回调
func (c *ChannelCompletion) Arm() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drain()
	c.gen++
	c.armed = true
	return c.gen
}

// Disarm 停止接收并清空通道
func (c *ChannelCompletion) Disarm(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.armed = false
	c.drain()
}

// Deliver 投递回调，未被取走的旧回调会被替换
// 没有等待中的登录时返回 false
func (c *ChannelCompletion) Deliver(cb Callback) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.armed {
		return false
	}
	// 只有 Deliver 写入且持有锁，清空后一定有空位
	c.drain()
	c.ch <- cb
	return true
}

func (c *ChannelCompletion) drain() {
	select {
	case <-c.ch:
	default:
	}
}

// Await 阻塞直到收到回调或 ctx 结束
func (c *ChannelCompletion) Await(ctx context.Context) (Callback, error) {
	select {
	case cb := <-c.ch:
		return cb, nil
	case <-ctx.Done():
		return Callback{}, ctx.Err()
	}
}
