package campaign

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCounter struct {
	n   int
	err error
}

func (f *fakeCounter) CountActive(context.Context, string) (int, error) { return f.n, f.err }

type fakeCanceller struct {
	calls     int
	campaigns []uuid.UUID
}

func (f *fakeCanceller) BulkCancel(_ context.Context, id uuid.UUID) (int64, error) {
	f.calls++
	f.campaigns = append(f.campaigns, id)
	return 4, nil
}

func TestStartDeclinedWithZeroRecipients(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctrl := NewController(NewStore(db), &fakeCounter{n: 0}, &fakeCanceller{})
	res, err := ctrl.Start(context.Background(), "acme", "welcome-v2", "general", 9000)
	require.NoError(t, err)

	assert.True(t, res.Declined)
	assert.NotEmpty(t, res.Reason)
	require.NoError(t, mock.ExpectationsWereMet()) // no insert happened
}

func TestStartCreatesActiveCampaign(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO campaigns").
		WillReturnResult(sqlmock.NewResult(1, 1))

	ctrl := NewController(NewStore(db), &fakeCounter{n: 5000}, &fakeCanceller{})
	res, err := ctrl.Start(context.Background(), "acme", "welcome-v2", "general", 9000)
	require.NoError(t, err)

	assert.False(t, res.Declined)
	assert.NotEqual(t, uuid.Nil, res.CampaignID)
	assert.Equal(t, 5000, res.TotalRecipients)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDailyBatchSizeFromWeeklyQuota(t *testing.T) {
	assert.Equal(t, 1286, ceilDiv(DefaultWeeklyQuota, 7))
	assert.Equal(t, 1, ceilDiv(1, 7))
	assert.Equal(t, 2, ceilDiv(8, 7))
	assert.Equal(t, 0, ceilDiv(10, 0))
}

func TestPauseRequiresActiveStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE campaigns SET status").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctrl := NewController(NewStore(db), &fakeCounter{}, &fakeCanceller{})
	err = ctrl.Pause(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStopCancelsFollowUps(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE campaigns SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))

	canceller := &fakeCanceller{}
	ctrl := NewController(NewStore(db), &fakeCounter{}, canceller)

	id := uuid.New()
	require.NoError(t, ctrl.Stop(context.Background(), id))

	assert.Equal(t, 1, canceller.calls)
	assert.Equal(t, []uuid.UUID{id}, canceller.campaigns)
}

func TestStatusSnapshotMath(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	id := uuid.New()
	cols := []string{"id", "owner", "content_ref", "category", "status",
		"total_recipients", "sent_count", "opened_count", "daily_batch_size",
		"started_at", "completed_at"}
	mock.ExpectQuery("SELECT id, owner").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(id, "acme", "welcome-v2", "general", "active",
				9000, 3000, 700, 1286, time.Now(), nil))

	ctrl := NewController(NewStore(db), &fakeCounter{}, &fakeCanceller{})
	snap, err := ctrl.Status(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, 3000, snap.SentCount)
	assert.InDelta(t, 33.33, snap.ProgressPct, 0.01)
	assert.Equal(t, 5, snap.DaysRemaining) // ceil(6000/1286)
}
