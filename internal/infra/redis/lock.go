package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	radix "github.com/mediocregopher/radix/v3"
)

// ErrLockHeld 锁已被其他请求持有
var ErrLockHeld = errors.New("lock is held by another holder")

// 只删除自己持有的锁
var releaseScript = radix.NewEvalScript(1, `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker 基于 SET NX PX 的分布式互斥锁
type Locker struct {
	client radix.Client
	prefix string
}

func NewLocker(client radix.Client, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

// Acquire 获取锁，返回释放函数；锁被占用时返回 ErrLockHeld
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	full := l.prefix + key
	token := uuid.NewString()

	var reply string
	if err := l.client.Do(radix.FlatCmd(&reply, "SET", full, token, "NX", "PX", ttl.Milliseconds())); err != nil {
		return nil, err
	}
	if reply != "OK" {
		return nil, ErrLockHeld
	}
	return func() {
		_ = l.client.Do(releaseScript.Cmd(nil, full, token))
	}, nil
}
