package phoneauth

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/phoneauth/credential"
	internalaudit "github.com/MrEthical07/phoneauth/internal/audit"
	"github.com/MrEthical07/phoneauth/internal/flows"
	"github.com/MrEthical07/phoneauth/internal/rate"
	"github.com/MrEthical07/phoneauth/invite"
	"github.com/MrEthical07/phoneauth/jwt"
	"github.com/MrEthical07/phoneauth/session"
)

// Engine runs signup, login and the refresh rotation protocol. It is safe
// for concurrent use after [Builder.Build] and keeps no session state in
// memory: Redis is the only authority on which refresh tokens are live.
type Engine struct {
	config Config

	credentials *credential.Store
	sessions    *session.Store
	tokens      *jwt.Manager
	limiter     *rate.Limiter
	invites     invite.Verifier

	audit   *internalaudit.Dispatcher
	metrics *Metrics

	deps flows.Deps
	now  func() time.Time
}

func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, e.config.OperationTimeout)
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

func (e *Engine) observe(id MetricID, start time.Time) {
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(id, time.Since(start))
	}
}

// Signup creates an account, or completes a provisional one, and opens its
// first session. An identity that already has a password is ErrConflict.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, newError(ErrServer, ErrEngineNotReady, nil)
	}
	start := time.Now()
	defer e.observe(MetricSignupLatency, start)

	ctx, cancel := e.opContext(ctx)
	defer cancel()

	id, err := credential.NewIdentity(req.CountryCode, req.PhoneNumber)
	if err != nil {
		e.metricInc(MetricSignupFailure)
		out := newError(ErrInvalidInput, ErrInvalidIdentity, err)
		e.record(ctx, auditEntry{event: auditEventSignupFailure, err: out})
		return TokenPair{}, out
	}

	res := flows.RunSignup(ctx, e.deps, flows.SignupInput{
		Identity: id,
		Password: req.Password,
		Profile: credential.Profile{
			Name:        req.Name,
			Email:       req.Email,
			Preferences: req.Preferences,
		},
		InviteCode: req.InviteCode,
	})
	if !res.OK() {
		out := e.failureError(ctx, res)
		switch res.Failure {
		case flows.FailureAccountExists:
			e.metricInc(MetricSignupDuplicate)
			e.record(ctx, auditEntry{event: auditEventSignupDuplicate, userID: res.UserID, err: out})
		case flows.FailureInviteInvalid:
			e.metricInc(MetricInviteRejected)
			e.metricInc(MetricSignupFailure)
			e.record(ctx, auditEntry{event: auditEventSignupFailure, err: out})
		default:
			e.metricInc(MetricSignupFailure)
			e.record(ctx, auditEntry{event: auditEventSignupFailure, userID: res.UserID, err: out})
		}
		return TokenPair{}, out
	}

	e.metricInc(MetricSignupSuccess)
	e.metricInc(MetricSessionCreated)
	e.record(ctx, auditEntry{event: auditEventSignupSuccess, userID: res.UserID, sessionID: res.SessionID})
	return tokenPair(res, true), nil
}

// Login verifies a phone identity and password and opens one new session.
// Unknown identities are ErrNotFound; wrong passwords, and accounts without a
// password yet, are ErrUnauthorized.
func (e *Engine) Login(ctx context.Context, id credential.Identity, password string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, newError(ErrServer, ErrEngineNotReady, nil)
	}
	start := time.Now()
	defer e.observe(MetricLoginLatency, start)

	ctx, cancel := e.opContext(ctx)
	defer cancel()

	res := flows.RunLogin(ctx, e.deps, id, password)
	if !res.OK() {
		out := e.failureError(ctx, res)
		if res.Failure == flows.FailureRateLimited {
			e.metricInc(MetricLoginRateLimited)
			e.record(ctx, auditEntry{
				event: auditEventLoginRateLimited,
				err:   out,
				meta:  map[string]string{"identity": id.String()},
			})
		} else {
			e.metricInc(MetricLoginFailure)
			e.record(ctx, auditEntry{event: auditEventLoginFailure, userID: res.UserID, err: out})
		}
		return TokenPair{}, out
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.record(ctx, auditEntry{event: auditEventLoginSuccess, userID: res.UserID, sessionID: res.SessionID})
	return tokenPair(res, true), nil
}

// Refresh consumes refreshToken and returns a new pair bound to the same
// user. Each refresh token succeeds at most once: a second presentation,
// sequential or concurrent, is ErrUnauthorized with reason ErrRefreshReuse.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if e == nil {
		return TokenPair{}, newError(ErrServer, ErrEngineNotReady, nil)
	}
	start := time.Now()
	defer e.observe(MetricRefreshLatency, start)

	ctx, cancel := e.opContext(ctx)
	defer cancel()

	res := flows.RunRefresh(ctx, e.deps, refreshToken)
	if !res.OK() {
		out := e.failureError(ctx, res)
		switch res.Failure {
		case flows.FailureRefreshReuse:
			e.metricInc(MetricRefreshReuseDetected)
			e.metrics.Add(MetricSessionInvalidated, uint64(res.Revoked))
			e.record(ctx, auditEntry{
				event:     auditEventRefreshReuseDetected,
				userID:    res.UserID,
				sessionID: res.SessionID,
				err:       out,
				meta:      revokedMetadata(res.Revoked),
			})
		case flows.FailureRateLimited:
			e.metricInc(MetricRefreshRateLimited)
			e.record(ctx, auditEntry{event: auditEventRefreshRateLimited, userID: res.UserID, sessionID: res.SessionID, err: out})
		default:
			e.metricInc(MetricRefreshFailure)
			e.record(ctx, auditEntry{event: auditEventRefreshInvalid, userID: res.UserID, sessionID: res.SessionID, err: out})
		}
		return TokenPair{}, out
	}

	e.metricInc(MetricRefreshSuccess)
	e.metricInc(MetricSessionInvalidated)
	e.metricInc(MetricSessionCreated)
	e.record(ctx, auditEntry{event: auditEventRefreshSuccess, userID: res.UserID, sessionID: res.SessionID})
	return tokenPair(res, false), nil
}

// Logout blacklists the session behind refreshToken. Invalid, expired and
// already-revoked tokens succeed so clients can always clear their state.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil {
		return newError(ErrServer, ErrEngineNotReady, nil)
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	res := flows.RunLogout(ctx, e.deps, refreshToken)
	if !res.OK() {
		out := e.failureError(ctx, res)
		e.record(ctx, auditEntry{event: auditEventLogoutSession, userID: res.UserID, sessionID: res.SessionID, err: out})
		return out
	}

	e.metricInc(MetricLogout)
	if res.SessionID != "" {
		e.record(ctx, auditEntry{event: auditEventLogoutSession, userID: res.UserID, sessionID: res.SessionID})
	}
	return nil
}

// LogoutAll blacklists every session of userID.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if e == nil {
		return newError(ErrServer, ErrEngineNotReady, nil)
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	res := flows.RunLogoutAll(ctx, e.deps, userID)
	if !res.OK() {
		out := e.failureError(ctx, res)
		e.record(ctx, auditEntry{event: auditEventLogoutAll, userID: userID, err: out})
		return out
	}

	e.metricInc(MetricLogoutAll)
	e.metrics.Add(MetricSessionInvalidated, uint64(res.Revoked))
	e.record(ctx, auditEntry{event: auditEventLogoutAll, userID: userID, meta: revokedMetadata(res.Revoked)})
	return nil
}

// Me returns the account behind an authenticated user id, without its hash.
func (e *Engine) Me(ctx context.Context, userID string) (credential.PublicUser, error) {
	if e == nil {
		return credential.PublicUser{}, newError(ErrServer, ErrEngineNotReady, nil)
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	res := flows.RunMe(ctx, e.deps, userID)
	if !res.OK() {
		return credential.PublicUser{}, e.failureError(ctx, res)
	}
	return res.User.Public(), nil
}

// ChangePassword replaces the password after checking the current one and
// signs the user out of every session.
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if e == nil {
		return newError(ErrServer, ErrEngineNotReady, nil)
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	res := flows.RunChangePassword(ctx, e.deps, userID, oldPassword, newPassword)
	if !res.OK() {
		out := e.failureError(ctx, res)
		if res.Failure == flows.FailureInvalidCredentials {
			e.metricInc(MetricPasswordChangeInvalidOld)
		}
		e.record(ctx, auditEntry{event: auditEventPasswordChangeFailure, userID: userID, err: out})
		return out
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.metrics.Add(MetricSessionInvalidated, uint64(res.Revoked))
	e.record(ctx, auditEntry{event: auditEventPasswordChangeSuccess, userID: userID, meta: revokedMetadata(res.Revoked)})
	return nil
}

// ValidateAccess verifies an access token without touching any store.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*Claims, error) {
	if e == nil {
		return nil, newError(ErrServer, ErrEngineNotReady, nil)
	}
	start := time.Now()
	defer e.observe(MetricValidateLatency, start)

	res := flows.RunValidateAccess(e.deps, accessToken)
	if !res.OK() {
		return nil, e.failureError(ctx, res)
	}
	return res.Claims, nil
}

// ValidateRefresh verifies a refresh token and requires its session to be
// active. The session is left untouched.
func (e *Engine) ValidateRefresh(ctx context.Context, refreshToken string) (*Claims, error) {
	if e == nil {
		return nil, newError(ErrServer, ErrEngineNotReady, nil)
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	res := flows.RunValidateRefresh(ctx, e.deps, refreshToken)
	if !res.OK() {
		return nil, e.failureError(ctx, res)
	}
	return res.Claims, nil
}

// ListSessions returns every stored session of userID, live or revoked.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil {
		return nil, newError(ErrServer, ErrEngineNotReady, nil)
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rows, err := e.sessions.ListForUser(ctx, userID)
	if err != nil {
		return nil, newError(ErrServer, nil, err)
	}
	now := e.now()
	out := make([]SessionInfo, 0, len(rows))
	for _, row := range rows {
		out = append(out, sessionInfo(row, now))
	}
	return out, nil
}

// CreateProvisionalUser records a number first seen through an inbound
// message. The account can log in only after it is claimed through Signup.
func (e *Engine) CreateProvisionalUser(ctx context.Context, countryCode, phoneNumber string, profile credential.Profile) (credential.PublicUser, error) {
	if e == nil {
		return credential.PublicUser{}, newError(ErrServer, ErrEngineNotReady, nil)
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	id, err := credential.NewIdentity(countryCode, phoneNumber)
	if err != nil {
		return credential.PublicUser{}, newError(ErrInvalidInput, ErrInvalidIdentity, err)
	}
	u, err := e.credentials.CreateProvisional(ctx, id, profile)
	if err != nil {
		if errors.Is(err, credential.ErrConflict) {
			return credential.PublicUser{}, newError(ErrConflict, ErrAccountExists, err)
		}
		return credential.PublicUser{}, newError(ErrServer, nil, err)
	}
	e.record(ctx, auditEntry{event: auditEventProvisionalUserCreated, userID: u.ID})
	return u.Public(), nil
}

// Ping checks the session store and reports its round-trip latency.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	if e == nil {
		return 0, newError(ErrServer, ErrEngineNotReady, nil)
	}
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	d, err := e.sessions.Ping(ctx)
	if err != nil {
		return d, newError(ErrServer, nil, err)
	}
	return d, nil
}

// RunReaper sweeps stale session index entries every Session.ReapInterval
// until ctx is cancelled. It returns immediately when the interval is zero.
func (e *Engine) RunReaper(ctx context.Context) {
	if e == nil || e.config.Session.ReapInterval <= 0 {
		return
	}
	session.NewReaper(e.sessions, e.config.Session.ReapInterval).Run(ctx)
}

// AccessTTL and RefreshTTL let transports size cookies.
func (e *Engine) AccessTTL() time.Duration  { return e.config.JWT.AccessTTL }
func (e *Engine) RefreshTTL() time.Duration { return e.config.JWT.RefreshTTL }

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded because the
// buffer was full or the engine was closing.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	return SecurityReport{
		ProductionMode:        e.config.Security.ProductionMode,
		SigningAlgorithm:      e.config.JWT.SigningMethod,
		AccessTTL:             e.config.JWT.AccessTTL,
		RefreshTTL:            e.config.JWT.RefreshTTL,
		PasswordAlgorithm:     e.config.Password.Algorithm,
		BcryptCost:            e.config.Password.BcryptCost,
		LoginThrottleActive:   e.config.Security.EnableLoginThrottle,
		RefreshThrottleActive: e.config.Security.EnableRefreshThrottle,
		RevokeAllOnReuse:      e.config.Security.RevokeAllOnReuse,
		ReplayTracking:        e.config.Security.EnableReplayTracking,
		InviteRequired:        e.config.Invite.Required,
		AuditEnabled:          e.config.Audit.Enabled,
		OperationTimeout:      e.config.OperationTimeout,
	}
}

// Close flushes queued audit events. The Redis client and user repository
// belong to the caller and stay open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

func tokenPair(res flows.Result, withUser bool) TokenPair {
	pair := TokenPair{
		AccessToken:      res.Issued.AccessToken,
		AccessExpiresAt:  res.Issued.AccessExpiresAt,
		RefreshToken:     res.Issued.RefreshToken,
		RefreshExpiresAt: res.Issued.RefreshExpiresAt,
		UserID:           res.UserID,
		SessionID:        res.Issued.SessionID,
	}
	if withUser {
		pub := res.User.Public()
		pair.User = &pub
	}
	return pair
}

// failureError maps a flow failure onto the public error taxonomy. A failure
// after the operation deadline is always ErrServer, never ErrNotFound.
func (e *Engine) failureError(ctx context.Context, res flows.Result) error {
	var ctxErr error
	if ctx != nil {
		ctxErr = ctx.Err()
	}
	if res.Failure == flows.FailureBackend || ctxErr != nil {
		e.metricInc(MetricBackendError)
		return newError(ErrServer, nil, firstErr(res.Err, ctxErr))
	}

	switch res.Failure {
	case flows.FailureNotReady:
		return newError(ErrServer, ErrEngineNotReady, res.Err)
	case flows.FailureInvalidInput:
		if errors.Is(res.Err, credential.ErrInvalidIdentity) {
			return newError(ErrInvalidInput, ErrInvalidIdentity, res.Err)
		}
		return newError(ErrInvalidInput, nil, res.Err)
	case flows.FailurePasswordPolicy:
		return newError(ErrInvalidInput, ErrPasswordPolicy, res.Err)
	case flows.FailureUserNotFound:
		return newError(ErrNotFound, ErrUserNotFound, res.Err)
	case flows.FailureInvalidCredentials:
		return newError(ErrUnauthorized, ErrInvalidCredentials, res.Err)
	case flows.FailureAccountExists:
		return newError(ErrConflict, ErrAccountExists, res.Err)
	case flows.FailureInviteInvalid:
		return newError(ErrUnauthorized, ErrInviteInvalid, res.Err)
	case flows.FailureTokenExpired:
		return newError(ErrUnauthorized, ErrTokenExpired, res.Err)
	case flows.FailureTokenInvalid:
		return newError(ErrUnauthorized, ErrTokenInvalid, res.Err)
	case flows.FailureSessionNotActive:
		return newError(ErrUnauthorized, ErrSessionNotActive, res.Err)
	case flows.FailureRefreshReuse:
		return newError(ErrUnauthorized, ErrRefreshReuse, res.Err)
	case flows.FailureRateLimited:
		return newError(ErrRateLimited, nil, res.Err)
	default:
		return newError(ErrServer, nil, res.Err)
	}
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
