package messaging

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Notifier fans out change notifications after store mutations. A
// notification carries no payload: subscribers re-query and redeliver the
// full ordered snapshot, never a delta.
type Notifier interface {
	ConversationsChanged(ctx context.Context, userIDs ...string)
	ThreadChanged(ctx context.Context, conversationID string)
	// SubscribeConversations invokes fn whenever userID's conversation
	// list may have changed. The returned func cancels the subscription.
	SubscribeConversations(ctx context.Context, userID string, fn func()) (func(), error)
	// SubscribeThread invokes fn whenever a conversation's thread may
	// have changed.
	SubscribeThread(ctx context.Context, conversationID string, fn func()) (func(), error)
}

// RedisNotifier implements Notifier over Redis pub/sub, so notifications
// reach subscribers on every server instance.
type RedisNotifier struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewRedisNotifier(rdb *redis.Client, log *slog.Logger) *RedisNotifier {
	return &RedisNotifier{rdb: rdb, log: log}
}

func conversationsChannel(userID string) string { return "zephia:conversations:" + userID }
func threadChannel(conversationID string) string { return "zephia:thread:" + conversationID }

// Publish failures are logged, not raised: a lost notification degrades
// liveness (a stale list until the next change), never correctness.
func (n *RedisNotifier) ConversationsChanged(ctx context.Context, userIDs ...string) {
	for _, id := range userIDs {
		if err := n.rdb.Publish(ctx, conversationsChannel(id), "changed").Err(); err != nil {
			n.log.Error("publish conversations change failed", "user_id", id, "error", err)
		}
	}
}

func (n *RedisNotifier) ThreadChanged(ctx context.Context, conversationID string) {
	if err := n.rdb.Publish(ctx, threadChannel(conversationID), "changed").Err(); err != nil {
		n.log.Error("publish thread change failed", "conversation_id", conversationID, "error", err)
	}
}

func (n *RedisNotifier) SubscribeConversations(ctx context.Context, userID string, fn func()) (func(), error) {
	return n.subscribe(ctx, conversationsChannel(userID), fn)
}

func (n *RedisNotifier) SubscribeThread(ctx context.Context, conversationID string, fn func()) (func(), error) {
	return n.subscribe(ctx, threadChannel(conversationID), fn)
}

func (n *RedisNotifier) subscribe(ctx context.Context, channel string, fn func()) (func(), error) {
	pubsub := n.rdb.Subscribe(ctx, channel)

	// Confirm the subscription before returning so no change between
	// "subscribed" and "first snapshot" can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, storeErr("notifier.subscribe", err)
	}

	go func() {
		for range pubsub.Channel() {
			fn()
		}
	}()

	return func() {
		if err := pubsub.Close(); err != nil {
			n.log.Error("unsubscribe failed", "channel", channel, "error", err)
		}
	}, nil
}
