// Package moderation implements the moderation core of the bot: the case
// ledger, warn escalation, and the lifecycle of time-bound sanctions.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PancyStudios/PancyModBot/pkg/database"
	"github.com/PancyStudios/PancyModBot/pkg/logger"
	"github.com/PancyStudios/PancyModBot/pkg/models"
	"github.com/cenkalti/backoff/v5"
)

// ExpiredReason is stored on the case logged when a sanction ends by itself
const ExpiredReason = "Sanción expirada"

// RetryPolicy bounds the attempts to undo an expired sanction
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when Options.Retry is left empty
var DefaultRetryPolicy = RetryPolicy{
	MaxTries:        5,
	InitialInterval: 2 * time.Second,
	MaxInterval:     time.Minute,
}

// Options wires the collaborators of a Moderator. Only Store and Executor
// are required.
type Options struct {
	Store           database.Gateway
	Executor        ActionExecutor
	Publisher       EventPublisher
	Alerter         Alerter
	Notifier        CaseNotifier
	Clock           Clock
	Retry           RetryPolicy
	CacheSize       int
	SystemModerator string
}

// Moderator ties the ledger, the escalation policy, the registry and the
// scheduler together. Every change to the sanction of one (server, user,
// action) triple runs under that triple's lock, expiry included.
type Moderator struct {
	Ledger    *CaseLedger
	Policy    *EscalationPolicy
	Registry  *TimeoutRegistry
	Scheduler *TimeoutScheduler

	executor  ActionExecutor
	publisher EventPublisher
	alerter   Alerter
	notifier  CaseNotifier
	clock     Clock
	retry     RetryPolicy
	locks     *keyedMutex

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	wg       sync.WaitGroup
	closing  bool
	systemID string

	// armed maps a triple to the timer this process scheduled for it.
	// Registry rows may carry handles issued by an earlier process, which
	// must never be cancelled here.
	armedMu sync.Mutex
	armed   map[string]models.TimerHandle
}

// New builds a Moderator from opts
func New(opts Options) (*Moderator, error) {
	if opts.Store == nil {
		return nil, errors.New("moderation: nil store")
	}
	if opts.Executor == nil {
		return nil, errors.New("moderation: nil executor")
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}
	if opts.Retry.MaxTries == 0 {
		opts.Retry = DefaultRetryPolicy
	}

	ledger, err := NewCaseLedger(opts.Store, opts.CacheSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Moderator{
		Ledger:    ledger,
		Policy:    NewEscalationPolicy(opts.Store),
		Registry:  NewTimeoutRegistry(opts.Store),
		Scheduler: NewTimeoutScheduler(opts.Clock),
		executor:  opts.Executor,
		publisher: opts.Publisher,
		alerter:   opts.Alerter,
		notifier:  opts.Notifier,
		clock:     opts.Clock,
		retry:     opts.Retry,
		locks:     newKeyedMutex(),
		ctx:       ctx,
		cancel:    cancel,
		systemID:  opts.SystemModerator,
		armed:     make(map[string]models.TimerHandle),
	}, nil
}

// SetSystemModerator sets the id recorded as moderator of automatic cases
func (m *Moderator) SetSystemModerator(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemID = id
}

// SetNotifier sets where recorded cases are reported
func (m *Moderator) SetNotifier(n CaseNotifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifier = n
}

func (m *Moderator) caseNotifier() CaseNotifier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notifier
}

// SystemModerator returns the id used for automatic cases
func (m *Moderator) SystemModerator() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.systemID == "" {
		return "system"
	}
	return m.systemID
}

func tripleKey(serverID, userID string, action models.ActionType) string {
	return serverID + "/" + userID + "/" + string(action)
}

// Sanction is a request to punish a user
type Sanction struct {
	ServerID    string
	ModeratorID string
	UserID      string
	Action      models.ActionType
	Reason      *string
	// Duration makes a MUTE or BAN time-bound; nil means permanent.
	// It is ignored for WARN and KICK.
	Duration *time.Duration
}

func (s Sanction) validate() error {
	if s.ServerID == "" || s.UserID == "" || s.ModeratorID == "" {
		return fmt.Errorf("%w: missing server, user or moderator", ErrInvalidSanction)
	}
	switch s.Action {
	case models.ActionWarn, models.ActionKick, models.ActionMute, models.ActionBan:
	default:
		return fmt.Errorf("%w: %s is not a punishment", ErrInvalidSanction, s.Action)
	}
	if s.Action.Reversible() && s.Duration != nil && *s.Duration < time.Second {
		return fmt.Errorf("%w: duration must be at least one second", ErrInvalidSanction)
	}
	if s.Action == models.ActionMute && s.Duration != nil && *s.Duration > MaxMuteDuration {
		return fmt.Errorf("%w: mute longer than %v", ErrInvalidSanction, MaxMuteDuration)
	}
	return nil
}

// Outcome describes what Punish did
type Outcome struct {
	Case models.ModerationCase
	// EndTime is set for time-bound sanctions
	EndTime int64
	// Escalation is the automatic follow-up triggered by a warn, if any
	Escalation *Outcome
	// EscalationErr is set when the warn was recorded but its follow-up failed
	EscalationErr error
}

// Punish applies a sanction on the platform, records its case and, for
// time-bound sanctions, arms the expiry timer. A WARN may trigger the
// escalation rule matching the user's new warn count.
func (m *Moderator) Punish(ctx context.Context, s Sanction) (*Outcome, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if !s.Action.Reversible() {
		s.Duration = nil
	}

	out, err := m.punish(ctx, s)
	if err != nil {
		return nil, err
	}

	if s.Action == models.ActionWarn {
		out.Escalation, out.EscalationErr = m.escalate(ctx, s.ServerID, s.UserID)
		if out.EscalationErr != nil {
			logger.Error(fmt.Sprintf("Escalado fallido para %s en %s: %v", s.UserID, s.ServerID, out.EscalationErr), "Moderation")
		}
	}
	return out, nil
}

func (m *Moderator) punish(ctx context.Context, s Sanction) (*Outcome, error) {
	if s.Action.Reversible() {
		unlock := m.locks.Lock(tripleKey(s.ServerID, s.UserID, s.Action))
		defer unlock()
	}

	now := m.clock.Now()
	var endTime int64
	var duration *int64
	opts := ApplyOptions{}
	if s.Reason != nil {
		opts.Reason = *s.Reason
	}
	if s.Duration != nil {
		until := now.Add(*s.Duration)
		endTime = until.Unix()
		duration = models.Int64Ptr(int64(s.Duration.Seconds()))
		opts.Until = until
	}

	if s.Action != models.ActionWarn {
		if err := m.executor.Apply(ctx, s.Action, s.UserID, s.ServerID, opts); err != nil {
			return nil, fmt.Errorf("apply %s: %w", s.Action, err)
		}
	}

	caseID, err := m.Ledger.Record(ctx, s.ServerID, s.ModeratorID, s.UserID, s.Action, now.Unix(), s.Reason, duration)
	if err != nil {
		m.compensate(s)
		return nil, err
	}

	if s.Action.Reversible() {
		if err := m.track(ctx, s, endTime); err != nil {
			m.compensate(s)
			return nil, err
		}
	}

	c := models.ModerationCase{
		ServerID:        s.ServerID,
		CaseID:          caseID,
		ModeratorID:     s.ModeratorID,
		SubjectUserID:   s.UserID,
		Action:          s.Action,
		Reason:          s.Reason,
		DurationSeconds: duration,
		Timestamp:       now.Unix(),
	}
	m.announce(ctx, c, endTime)
	return &Outcome{Case: c, EndTime: endTime}, nil
}

// track keeps the registry and the scheduler in line with a freshly applied
// MUTE or BAN. The caller holds the triple lock.
func (m *Moderator) track(ctx context.Context, s Sanction, endTime int64) error {
	existing, err := m.Registry.Get(ctx, s.UserID, s.Action, s.ServerID)
	if err != nil {
		return err
	}
	key := tripleKey(s.ServerID, s.UserID, s.Action)
	m.disarm(key)

	if endTime == 0 {
		if existing == nil {
			return nil
		}
		_, _, err := m.Registry.Remove(ctx, s.UserID, s.Action, s.ServerID)
		return err
	}

	h := m.schedule(s.ServerID, s.UserID, s.Action, endTime)
	if existing != nil {
		err = m.Registry.Replace(ctx, endTime, s.UserID, s.Action, s.ServerID, h)
	} else {
		err = m.Registry.Put(ctx, endTime, s.UserID, s.Action, s.ServerID, h)
	}
	if err != nil {
		m.disarm(key)
		return err
	}
	return nil
}

// schedule arms the expiry timer of a triple and remembers it as the
// triple's live timer
func (m *Moderator) schedule(serverID, userID string, action models.ActionType, endTime int64) models.TimerHandle {
	h := m.Scheduler.Schedule(endTime, m.expiry(serverID, userID, action))
	m.armedMu.Lock()
	m.armed[tripleKey(serverID, userID, action)] = h
	m.armedMu.Unlock()
	return h
}

// disarm cancels the timer this process armed for key, if any. Handles read
// from storage are never cancelled directly: a row may carry a handle issued
// before a restart, which now belongs to another triple's timer.
func (m *Moderator) disarm(key string) {
	m.armedMu.Lock()
	h, ok := m.armed[key]
	delete(m.armed, key)
	m.armedMu.Unlock()
	if ok {
		m.Scheduler.Cancel(h)
	}
}

func (m *Moderator) liveTimer(key string) (models.TimerHandle, bool) {
	m.armedMu.Lock()
	defer m.armedMu.Unlock()
	h, ok := m.armed[key]
	return h, ok
}

// release forgets a timer that already fired
func (m *Moderator) release(key string, h models.TimerHandle) {
	m.armedMu.Lock()
	defer m.armedMu.Unlock()
	if m.armed[key] == h {
		delete(m.armed, key)
	}
}

// compensate undoes a platform action whose bookkeeping failed
func (m *Moderator) compensate(s Sanction) {
	if !s.Action.Reversible() {
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
	defer cancel()
	if err := m.executor.Reverse(ctx, s.Action, s.UserID, s.ServerID); err != nil {
		logger.Error(fmt.Sprintf("No se pudo revertir %s de %s en %s tras un fallo: %v", s.Action, s.UserID, s.ServerID, err), "Moderation")
	}
}

func (m *Moderator) escalate(ctx context.Context, serverID, userID string) (*Outcome, error) {
	count, err := m.Ledger.CountWarns(ctx, serverID, userID)
	if err != nil {
		return nil, err
	}
	rule, err := m.Policy.Lookup(ctx, serverID, count)
	if err != nil || rule == nil {
		return nil, err
	}

	s := Sanction{
		ServerID:    serverID,
		ModeratorID: m.SystemModerator(),
		UserID:      userID,
		Action:      rule.Action,
		Reason:      models.StringPtr(fmt.Sprintf("Escalado automático: %d advertencias", count)),
	}
	if rule.DurationSeconds != nil {
		d := time.Duration(*rule.DurationSeconds) * time.Second
		s.Duration = &d
	}
	logger.Info(fmt.Sprintf("%s alcanzó %d advertencias en %s, aplicando %s", userID, count, serverID, rule.Action), "Moderation")
	return m.punish(ctx, s)
}

// Revoke lifts an active MUTE or BAN before its time and records the
// matching UNMUTE or UNBAN case.
func (m *Moderator) Revoke(ctx context.Context, serverID, moderatorID, userID string, action models.ActionType, reason *string) (*models.ModerationCase, error) {
	reversal, ok := action.Reversal()
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot be revoked", ErrInvalidSanction, action)
	}
	if serverID == "" || userID == "" || moderatorID == "" {
		return nil, fmt.Errorf("%w: missing server, user or moderator", ErrInvalidSanction)
	}

	unlock := m.locks.Lock(tripleKey(serverID, userID, action))
	defer unlock()

	if err := m.executor.Reverse(ctx, action, userID, serverID); err != nil {
		return nil, fmt.Errorf("reverse %s: %w", action, err)
	}

	h, found, err := m.Registry.Remove(ctx, userID, action, serverID)
	if err != nil {
		return nil, err
	}
	if found {
		logger.Debug(fmt.Sprintf("Timeout %s de %s en %s retirado (temporizador #%d)", action, userID, serverID, h), "Timeouts")
	}
	m.disarm(tripleKey(serverID, userID, action))

	now := m.clock.Now().Unix()
	caseID, err := m.Ledger.Record(ctx, serverID, moderatorID, userID, reversal, now, reason, nil)
	if err != nil {
		return nil, err
	}

	c := models.ModerationCase{
		ServerID:      serverID,
		CaseID:        caseID,
		ModeratorID:   moderatorID,
		SubjectUserID: userID,
		Action:        reversal,
		Reason:        reason,
		Timestamp:     now,
	}
	m.announce(ctx, c, 0)
	return &c, nil
}

// Reapply puts an active mute back on a user, e.g. after they re-join the
// server. It reports false when the user has no active mute.
func (m *Moderator) Reapply(ctx context.Context, serverID, userID string) (bool, error) {
	unlock := m.locks.Lock(tripleKey(serverID, userID, models.ActionMute))
	defer unlock()

	t, err := m.Registry.Get(ctx, userID, models.ActionMute, serverID)
	if err != nil || t == nil {
		return false, err
	}
	until := time.Unix(t.EndTime, 0)
	if !until.After(m.clock.Now()) {
		return false, nil
	}
	err = m.executor.Apply(ctx, models.ActionMute, userID, serverID, ApplyOptions{
		Reason: "Silencio activo reaplicado",
		Until:  until,
	})
	return err == nil, err
}

// Forget drops the active timeout of a sanction that was lifted outside the
// bot, e.g. an unban done by hand. No platform call is made and no case is
// recorded.
func (m *Moderator) Forget(ctx context.Context, serverID, userID string, action models.ActionType) (bool, error) {
	unlock := m.locks.Lock(tripleKey(serverID, userID, action))
	defer unlock()

	h, found, err := m.Registry.Remove(ctx, userID, action, serverID)
	if err != nil || !found {
		return false, err
	}
	m.disarm(tripleKey(serverID, userID, action))
	logger.Info(fmt.Sprintf("Timeout %s de %s en %s descartado (temporizador #%d)", action, userID, serverID, h), "Timeouts")
	return true, nil
}

// expiry returns the timer callback of one triple
func (m *Moderator) expiry(serverID, userID string, action models.ActionType) ExpireFunc {
	return func(h models.TimerHandle) {
		m.release(tripleKey(serverID, userID, action), h)
		if !m.begin() {
			return
		}
		defer m.wg.Done()
		m.expire(h, serverID, userID, action)
	}
}

// begin registers an in-flight expiry; false once Stop has been called
func (m *Moderator) begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return false
	}
	m.wg.Add(1)
	return true
}

// expire undoes a sanction whose time is up. The registry row is only
// removed once the platform accepted the reversal, and only if it still
// belongs to handle h.
func (m *Moderator) expire(h models.TimerHandle, serverID, userID string, action models.ActionType) {
	ctx := m.ctx
	unlock := m.locks.Lock(tripleKey(serverID, userID, action))
	defer unlock()

	t, err := m.Registry.Get(ctx, userID, action, serverID)
	if err != nil {
		logger.Error(fmt.Sprintf("No se pudo leer el timeout %s de %s en %s: %v", action, userID, serverID, err), "Timeouts")
		return
	}
	if t == nil || t.Handle != h {
		logger.Debug(fmt.Sprintf("Temporizador #%d obsoleto para %s de %s en %s", h, action, userID, serverID), "Timeouts")
		return
	}

	if err := m.reverseWithRetry(ctx, action, userID, serverID); err != nil {
		if ctx.Err() != nil {
			logger.Warn(fmt.Sprintf("Expiración de %s de %s en %s interrumpida por apagado", action, userID, serverID), "Timeouts")
			return
		}
		m.raise(*t, err)
		return
	}

	// the platform already lifted the sanction, finish the bookkeeping even
	// if shutdown starts now
	ctx = context.WithoutCancel(ctx)
	if _, _, err := m.Registry.Remove(ctx, userID, action, serverID); err != nil {
		logger.Error(fmt.Sprintf("No se pudo borrar el timeout %s de %s en %s: %v", action, userID, serverID, err), "Timeouts")
		return
	}

	reversal, _ := action.Reversal()
	now := m.clock.Now().Unix()
	moderatorID := m.SystemModerator()
	reason := models.StringPtr(ExpiredReason)
	caseID, err := m.Ledger.Record(ctx, serverID, moderatorID, userID, reversal, now, reason, nil)
	if err != nil {
		logger.Error(fmt.Sprintf("No se pudo registrar %s de %s en %s: %v", reversal, userID, serverID, err), "Timeouts")
		return
	}

	logger.Info(fmt.Sprintf("%s de %s en %s expirado (caso #%d)", action, userID, serverID, caseID), "Timeouts")
	m.publish(TopicExpired, ExpiryEvent{
		ServerID: serverID,
		UserID:   userID,
		Action:   action,
		EndTime:  t.EndTime,
		CaseID:   caseID,
	})
	if n := m.caseNotifier(); n != nil {
		n.NotifyCase(ctx, models.ModerationCase{
			ServerID:      serverID,
			CaseID:        caseID,
			ModeratorID:   moderatorID,
			SubjectUserID: userID,
			Action:        reversal,
			Reason:        reason,
			Timestamp:     now,
		}, 0)
	}
}

func (m *Moderator) reverseWithRetry(ctx context.Context, action models.ActionType, userID, serverID string) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.retry.InitialInterval
	b.MaxInterval = m.retry.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := m.executor.Reverse(ctx, action, userID, serverID)
		if errors.Is(err, ErrUnsupportedAction) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(m.retry.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn(fmt.Sprintf("Reintentando revertir %s de %s en %s en %v: %v", action, userID, serverID, next, err), "Timeouts")
		}),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReversalExhausted, err)
	}
	return nil
}

// raise reports a sanction that could not be undone. Its registry row is
// left in place so the next recovery tries again.
func (m *Moderator) raise(t models.ActiveTimeout, err error) {
	msg := fmt.Sprintf("No se pudo revertir %s de %s en %s: %v", t.Action, t.SubjectUserID, t.ServerID, err)
	logger.Error(msg, "Timeouts")
	if m.alerter != nil {
		m.alerter.Alert("Sanción sin revertir", msg)
	}
	m.publish(TopicAlert, ExpiryEvent{
		ServerID: t.ServerID,
		UserID:   t.SubjectUserID,
		Action:   t.Action,
		EndTime:  t.EndTime,
		Error:    err.Error(),
	})
}

func (m *Moderator) announce(ctx context.Context, c models.ModerationCase, endTime int64) {
	m.publish(TopicCase, CaseEvent{Case: c, EndTime: endTime})
	if n := m.caseNotifier(); n != nil {
		n.NotifyCase(ctx, c, endTime)
	}
}

func (m *Moderator) publish(topic string, payload interface{}) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Publish(topic, payload); err != nil {
		logger.Warn(fmt.Sprintf("No se pudo publicar en %s: %v", topic, err), "Moderation")
	}
}

// RecoveryReport summarises a Recover run
type RecoveryReport struct {
	Armed   int
	Expired int
	Failed  int
}

// Recover rebuilds the expiry timers from the registry. Timeouts that ended
// while the bot was offline are expired right away, concurrently; Recover
// returns once they are all done.
func (m *Moderator) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	timeouts, err := m.Registry.LoadAll(ctx)
	if err != nil {
		return report, err
	}

	var wg sync.WaitGroup
	arm := func(t models.ActiveTimeout) models.TimerHandle {
		key := tripleKey(t.ServerID, t.SubjectUserID, t.Action)
		unlock := m.locks.Lock(key)
		defer unlock()

		// a command may have touched the triple since LoadAll
		if h, ok := m.liveTimer(key); ok {
			return h
		}
		cur, err := m.Registry.Get(ctx, t.SubjectUserID, t.Action, t.ServerID)
		if err != nil || cur == nil {
			if err != nil {
				logger.Error(fmt.Sprintf("No se pudo releer %s de %s en %s: %v", t.Action, t.SubjectUserID, t.ServerID, err), "Timeouts")
			}
			return 0
		}

		h := m.schedule(t.ServerID, t.SubjectUserID, t.Action, cur.EndTime)
		if err := m.Registry.Put(ctx, cur.EndTime, t.SubjectUserID, t.Action, t.ServerID, h); err != nil {
			logger.Error(fmt.Sprintf("No se pudo rearmar %s de %s en %s: %v", t.Action, t.SubjectUserID, t.ServerID, err), "Timeouts")
			m.disarm(key)
			return 0
		}
		return h
	}
	expireNow := func(t models.ActiveTimeout) {
		if !m.begin() {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer m.wg.Done()
			m.expire(t.Handle, t.ServerID, t.SubjectUserID, t.Action)
		}()
	}

	for _, r := range m.Scheduler.Recover(timeouts, arm, expireNow) {
		switch {
		case !r.Armed:
			report.Expired++
		case r.Handle == 0:
			report.Failed++
		default:
			report.Armed++
		}
	}
	wg.Wait()

	logger.System(fmt.Sprintf("Timeouts recuperados: %d armados, %d expirados, %d fallidos", report.Armed, report.Expired, report.Failed), "Timeouts")
	return report, nil
}

// Stop cancels every timer and waits for in-flight expiries. Sanctions
// stay in the registry and are picked up by the next Recover.
func (m *Moderator) Stop() {
	m.mu.Lock()
	m.closing = true
	m.mu.Unlock()

	m.Scheduler.Stop()
	m.cancel()
	m.wg.Wait()
}
