package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ActorSuite struct {
	suite.Suite
	tokens *TokenService
	logger *slog.Logger
	seen   Actor
	next   http.Handler
}

func TestActorSuite(t *testing.T) {
	suite.Run(t, new(ActorSuite))
}

func (s *ActorSuite) SetupTest() {
	s.tokens = NewTokenService("test-signing-key")
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.seen = Actor{}
	s.next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.seen = ActorFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func (s *ActorSuite) serve(tokens *TokenService, header, value string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/tasks", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	w := httptest.NewRecorder()
	RequireActor(tokens, s.logger)(s.next).ServeHTTP(w, req)
	return w
}

func (s *ActorSuite) TestValidTokenSetsActor() {
	token, err := s.tokens.Issue(Actor{ID: "officer-17", Role: "supervisor"}, time.Now(), time.Hour)
	s.Require().NoError(err)

	w := s.serve(s.tokens, "Authorization", "Bearer "+token)
	s.Equal(http.StatusNoContent, w.Code)
	s.Equal(Actor{ID: "officer-17", Role: "supervisor"}, s.seen)
}

func (s *ActorSuite) TestExpiredTokenIsRejected() {
	token, err := s.tokens.Issue(Actor{ID: "officer-17", Role: "reviewer"}, time.Now().Add(-2*time.Hour), time.Hour)
	s.Require().NoError(err)

	w := s.serve(s.tokens, "Authorization", "Bearer "+token)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *ActorSuite) TestForeignSignatureIsRejected() {
	other := NewTokenService("another-key")
	token, err := other.Issue(Actor{ID: "intruder"}, time.Now(), time.Hour)
	s.Require().NoError(err)

	w := s.serve(s.tokens, "Authorization", "Bearer "+token)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *ActorSuite) TestMissingHeaderIsRejected() {
	w := s.serve(s.tokens, "", "")
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *ActorSuite) TestHeaderModeWithoutTokenService() {
	w := s.serve(nil, "X-Actor-ID", "clerk-3")
	s.Equal(http.StatusNoContent, w.Code)
	s.Equal("clerk-3", s.seen.ID)
}

func (s *ActorSuite) TestActorFromDefaultsToSystem() {
	s.Equal(SystemActor, ActorFrom(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}
