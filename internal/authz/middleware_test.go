package authz

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/longstone-am/longstone/internal/shared"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requireProbe(t *testing.T, f *serviceFixture, permission Permission, sess *shared.Session) *httptest.ResponseRecorder {
	t.Helper()
	mw := Middleware{Service: f.service, Logger: discardLogger()}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if sess != nil {
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	res := httptest.NewRecorder()
	mw.Require(permission)(next).ServeHTTP(res, req)
	return res
}

func sessionFor(id string) *shared.Session {
	sess := &shared.Session{}
	sess.SetUser(id)
	return sess
}

func TestRequireNoSession(t *testing.T) {
	f := newServiceFixture(t)
	res := requireProbe(t, f, PermViewPortfolios, nil)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequireAnonymousSession(t *testing.T) {
	f := newServiceFixture(t)
	res := requireProbe(t, f, PermViewPortfolios, &shared.Session{})
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequireMalformedUserID(t *testing.T) {
	f := newServiceFixture(t)
	res := requireProbe(t, f, PermViewPortfolios, sessionFor("not-a-uuid"))
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequireDeniedUser(t *testing.T) {
	f := newServiceFixture(t)
	f.seed(t)
	dealer := f.addUser(RoleDealer, true)
	res := requireProbe(t, f, PermManageUsers, sessionFor(dealer.String()))
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequireUnknownUser(t *testing.T) {
	f := newServiceFixture(t)
	f.seed(t)
	res := requireProbe(t, f, PermViewPortfolios, sessionFor(uuid.NewString()))
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestRequireGrantedUser(t *testing.T) {
	f := newServiceFixture(t)
	f.seed(t)
	dealer := f.addUser(RoleDealer, true)
	res := requireProbe(t, f, PermExecuteOrders, sessionFor(dealer.String()))
	assert.Equal(t, http.StatusNoContent, res.Code)
}

func TestRequireStoreFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.gate.err = assert.AnError
	res := requireProbe(t, f, PermViewPortfolios, sessionFor(uuid.NewString()))
	assert.Equal(t, http.StatusInternalServerError, res.Code)
}
