package message

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"akistel-relay/internal/domain"
	"akistel-relay/internal/service/envelope"
)

// stubRepository records retention sweeps; the other queue operations are
// not exercised by these tests
type stubRepository struct {
	deleteCalls int
}

func (s *stubRepository) Create(ctx context.Context, env *domain.Envelope) error { return nil }

func (s *stubRepository) Inbox(ctx context.Context, recipientID uuid.UUID, limit int) ([]*domain.InboxEntry, error) {
	return nil, nil
}

func (s *stubRepository) Ack(ctx context.Context, envelopeIDs []uuid.UUID) (int64, error) {
	return 0, nil
}

func (s *stubRepository) DeleteExpiredBatch(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	s.deleteCalls++
	return 0, nil
}

func newCleanupRouter(repo *stubRepository, retention time.Duration) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := envelope.NewService(repo, nil, nil, nil, nil)
	handler := NewHandler(svc, retention)

	router := gin.New()
	router.DELETE("/v1/messages/cleanup", handler.Cleanup)
	return router
}

func TestCleanupRejectsShorterWindow(t *testing.T) {
	repo := &stubRepository{}
	router := newCleanupRouter(repo, 168*time.Hour)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/v1/messages/cleanup?max_age_hours=1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, repo.deleteCalls)
}

func TestCleanupAcceptsWiderWindow(t *testing.T) {
	repo := &stubRepository{}
	router := newCleanupRouter(repo, 168*time.Hour)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/v1/messages/cleanup?max_age_hours=240", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, repo.deleteCalls)
}

func TestCleanupDefaultsToConfiguredRetention(t *testing.T) {
	repo := &stubRepository{}
	router := newCleanupRouter(repo, 168*time.Hour)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/v1/messages/cleanup", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, repo.deleteCalls)
}
