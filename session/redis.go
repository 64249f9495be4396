package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/talentmesh/talentmesh/core"
)

const defaultRedisPrefix = "talentmesh:"

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	// Prefix namespaces all keys. Defaults to "talentmesh:".
	Prefix string
	// TTL expires session keys; zero means no expiration. The idle index is
	// the sweeper's source of truth either way.
	TTL time.Duration
}

// RedisStore is a SessionStore backed by Redis. Sessions are stored as JSON
// values, the participant index maps participant to session ID, and a sorted
// set keyed by last-activity time serves ListIdleSince without scanning.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store over an existing client.
func NewRedisStore(client *redis.Client, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{Prefix: defaultRedisPrefix}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{client: client, prefix: opts.Prefix, ttl: opts.TTL}
}

func (s *RedisStore) sessionKey(id string) string    { return s.prefix + "session:" + id }
func (s *RedisStore) participantKey(p string) string { return s.prefix + "participant:" + p }
func (s *RedisStore) idleKey() string                { return s.prefix + "idle" }

// GetOrCreate returns the participant's session, creating it on first
// contact. Creation races resolve through SETNX on the participant index:
// the loser discards its candidate and loads the winner's session.
func (s *RedisStore) GetOrCreate(ctx context.Context, participantID string) (*core.Session, error) {
	id, err := s.client.Get(ctx, s.participantKey(participantID)).Result()
	switch {
	case err == nil:
		sess, loadErr := s.load(ctx, id)
		if loadErr == nil {
			return sess, nil
		}
		if !errors.Is(loadErr, ErrSessionNotFound) {
			return nil, loadErr
		}
		// Session value expired while the index survived; recreate.
	case !errors.Is(err, redis.Nil):
		return nil, fmt.Errorf("reading participant index: %w", err)
	}

	candidate := core.NewSession(core.NewID(), participantID)
	set, err := s.client.SetNX(ctx, s.participantKey(participantID), candidate.ID, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("claiming participant index: %w", err)
	}
	if !set {
		winner, err := s.client.Get(ctx, s.participantKey(participantID)).Result()
		if err != nil {
			return nil, fmt.Errorf("reading participant index after race: %w", err)
		}
		return s.load(ctx, winner)
	}
	if err := s.save(ctx, candidate); err != nil {
		return nil, err
	}
	return candidate, nil
}

// Get returns a session by ID.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*core.Session, error) {
	return s.load(ctx, sessionID)
}

// Save persists the session snapshot and refreshes the idle index.
func (s *RedisStore) Save(ctx context.Context, session *core.Session) error {
	return s.save(ctx, session)
}

// Attach records instance ownership on the session.
func (s *RedisStore) Attach(ctx context.Context, sessionID, instanceID string) error {
	return s.mutate(ctx, sessionID, func(sess *core.Session) { sess.Attach(instanceID) })
}

// Detach removes instance ownership on termination.
func (s *RedisStore) Detach(ctx context.Context, sessionID, instanceID string) error {
	return s.mutate(ctx, sessionID, func(sess *core.Session) { sess.Detach(instanceID) })
}

// Touch updates the session's last-activity timestamp.
func (s *RedisStore) Touch(ctx context.Context, sessionID string) error {
	return s.mutate(ctx, sessionID, func(sess *core.Session) { sess.Touch() })
}

// ListIdleSince returns IDs of sessions whose last activity predates the
// threshold, straight from the idle index.
func (s *RedisStore) ListIdleSince(ctx context.Context, threshold time.Time) ([]string, error) {
	ids, err := s.client.ZRangeByScore(ctx, s.idleKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(threshold.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing idle sessions: %w", err)
	}
	return ids, nil
}

// Delete removes a session, its participant index entry and its idle score.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.Del(ctx, s.participantKey(sess.ParticipantID))
	pipe.ZRem(ctx, s.idleKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (s *RedisStore) mutate(ctx context.Context, sessionID string, fn func(sess *core.Session)) error {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	fn(sess)
	return s.save(ctx, sess)
}

func (s *RedisStore) load(ctx context.Context, sessionID string) (*core.Session, error) {
	val, err := s.client.Get(ctx, s.sessionKey(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}
	var sess core.Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	if sess.State == nil {
		sess.State = map[string]any{}
	}
	return &sess, nil
}

func (s *RedisStore) save(ctx context.Context, sess *core.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.sessionKey(sess.ID), data, s.ttl)
	pipe.Set(ctx, s.participantKey(sess.ParticipantID), sess.ID, s.ttl)
	pipe.ZAdd(ctx, s.idleKey(), redis.Z{
		Score:  float64(sess.LastActivity.Unix()),
		Member: sess.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	return nil
}
