package session

import (
	"context"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"fleettrack/internal/shard"
)

const presenceTimeout = 2 * time.Second

// Presence mirrors online state outside the process. Calls are best-effort.
type Presence interface {
	Online(ctx context.Context, identity, sessionID string) error
	Offline(ctx context.Context, identity, sessionID string) error
}

// Registry maps device identities to their active session. At most one
// session is active per identity; the latest login wins.
type Registry struct {
	active   *shard.Map[*Session]
	live     *shard.Map[*Session]
	presence Presence
	logger   *log.Entry
	now      func() time.Time
}

func NewRegistry(presence Presence, logger *log.Entry) *Registry {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Registry{
		active:   shard.NewMap[*Session](shard.DefaultShards),
		live:     shard.NewMap[*Session](shard.DefaultShards),
		presence: presence,
		logger:   logger.WithField("component", "session"),
		now:      time.Now,
	}
}

func (r *Registry) OnConnect(conn net.Conn) *Session {
	s := newSession(conn, r.now())
	r.live.Swap(s.ID, s)
	r.logger.WithFields(log.Fields{"remote": s.remote, "session": s.ID}).Info("device connected")
	return s
}

// OnLogin binds s to identity and makes it the active session for it. The
// superseded session, if any, is returned but not closed.
func (r *Registry) OnLogin(ctx context.Context, s *Session, identity string) *Session {
	s.mu.Lock()
	prev := s.identity
	s.identity = identity
	s.mu.Unlock()
	s.lastSeen.Store(r.now().UnixNano())

	if prev != "" && prev != identity {
		r.active.CompareAndDelete(prev, func(v *Session) bool { return v == s })
	}

	old, _ := r.active.Swap(identity, s)
	entry := r.logger.WithFields(log.Fields{"device": identity, "remote": s.remote, "session": s.ID})
	if old != nil && old != s {
		entry.WithField("superseded", old.ID).Info("device re-logged in, previous session superseded")
	} else if old == nil {
		entry.Info("device logged in")
	}

	r.mirror(ctx, identity, s.ID, true)
	if old == s {
		return nil
	}
	return old
}

// OnDisconnect forgets s. The identity mapping is removed only while it still
// points at s, so a late disconnect from a superseded socket is harmless.
func (r *Registry) OnDisconnect(ctx context.Context, s *Session) {
	r.live.Delete(s.ID)
	identity := s.Identity()
	entry := r.logger.WithFields(log.Fields{"device": identity, "remote": s.remote, "session": s.ID})
	if identity == "" {
		entry.Info("device disconnected before login")
		return
	}
	if r.active.CompareAndDelete(identity, func(v *Session) bool { return v == s }) {
		r.mirror(ctx, identity, s.ID, false)
		entry.Info("device disconnected")
		return
	}
	entry.Debug("stale session disconnected")
}

// Active returns the session currently registered for identity, or nil.
func (r *Registry) Active(identity string) *Session {
	s, _ := r.active.Get(identity)
	return s
}

// Touch records activity on s and refreshes its presence entry.
func (r *Registry) Touch(ctx context.Context, s *Session) {
	s.lastSeen.Store(r.now().UnixNano())
	if identity := s.Identity(); identity != "" && r.Active(identity) == s {
		r.mirror(ctx, identity, s.ID, true)
	}
}

// Count returns the number of open connections.
func (r *Registry) Count() int { return r.live.Len() }

// Online returns the number of identities with an active session.
func (r *Registry) Online() int { return r.active.Len() }

// Close closes every live connection. Connection handlers then run their
// normal disconnect path.
func (r *Registry) Close() {
	var sessions []*Session
	r.live.Range(func(_ string, s *Session) bool {
		sessions = append(sessions, s)
		return true
	})
	for _, s := range sessions {
		_ = s.Close()
	}
}

func (r *Registry) mirror(ctx context.Context, identity, sessionID string, online bool) {
	if r.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()

	var err error
	if online {
		err = r.presence.Online(ctx, identity, sessionID)
	} else {
		err = r.presence.Offline(ctx, identity, sessionID)
	}
	if err != nil {
		r.logger.WithError(err).WithField("device", identity).Warn("presence update failed")
	}
}
