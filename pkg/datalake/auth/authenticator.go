// Package auth exchanges credentials for a data lake session and revokes it at shutdown.
package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/tigerroll/datalake-export/pkg/datalake/client"
	model "github.com/tigerroll/datalake-export/pkg/datalake/core/domain/model"
	"github.com/tigerroll/datalake-export/pkg/datalake/core/metrics"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/exception"
	"github.com/tigerroll/datalake-export/pkg/datalake/support/util/logger"
)

const (
	loginPath  = "/apikey"
	logoutPath = "/apikey/logout"
)

// SessionAuthenticator logs in and out of the data lake.
type SessionAuthenticator struct {
	api      client.API
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
	now      func() time.Time
}

// NewSessionAuthenticator creates a SessionAuthenticator.
func NewSessionAuthenticator(api client.API, recorder metrics.MetricRecorder, tracer metrics.Tracer) *SessionAuthenticator {
	return &SessionAuthenticator{api: api, recorder: recorder, tracer: tracer, now: time.Now}
}

// Login sends the credentials once and returns a live session.
// Any failure, including an unreachable endpoint, is an AuthFailure; retrying is up to the caller.
func (a *SessionAuthenticator) Login(ctx context.Context, account, password string) (*model.Session, error) {
	ctx, end := a.tracer.StartSpan(ctx, "datalake.login", nil)
	defer end()
	start := a.now()

	body, err := a.api.PostForm(ctx, loginPath, url.Values{
		"username": {account},
		"password": {password},
	})
	token := strings.TrimSpace(body)
	if err == nil && token == "" {
		err = errors.New("login succeeded without a session token")
	}
	if err != nil {
		a.recorder.RecordDuration(ctx, "login", a.now().Sub(start), map[string]string{"outcome": metrics.OutcomeFailure})
		authErr := exception.NewAuthFailure("login failed", err)
		a.tracer.RecordError(ctx, "auth", authErr)
		return nil, authErr
	}

	a.recorder.RecordDuration(ctx, "login", a.now().Sub(start), map[string]string{"outcome": metrics.OutcomeSuccess})
	session := model.NewSession(account, token, a.now())
	logger.Debugf("Logged in: %s", session)
	return session, nil
}

// Logout revokes the session token. It is best-effort: failures are logged, never returned,
// and the session is invalidated whatever the remote answers. It runs even if ctx was cancelled.
func (a *SessionAuthenticator) Logout(ctx context.Context, session *model.Session) {
	if session == nil || !session.Valid() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	ctx, end := a.tracer.StartSpan(ctx, "datalake.logout", nil)
	defer end()
	defer session.Invalidate()
	start := a.now()

	_, err := a.api.PostForm(ctx, logoutPath, url.Values{
		"apikey": {session.Token()},
		"format": {"JSON"},
	})
	if err != nil {
		a.recorder.RecordDuration(ctx, "logout", a.now().Sub(start), map[string]string{"outcome": metrics.OutcomeFailure})
		logger.Warnf("Logout failed, the session token is discarded anyway: %v", err)
		return
	}
	a.recorder.RecordDuration(ctx, "logout", a.now().Sub(start), map[string]string{"outcome": metrics.OutcomeSuccess})
	logger.Infof("Logged out at %s", a.now().UTC().Format(time.RFC3339))
}
