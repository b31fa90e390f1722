package gormrepo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/wallbox-server/internal/storage"
	"github.com/taoyao-code/wallbox-server/internal/storage/models"
	"github.com/taoyao-code/wallbox-server/internal/storage/storagetest"
)

func seedStation(t *testing.T, repo storage.Repo, ownerID int64, chargerID string) *models.ChargingStation {
	t.Helper()
	st := &models.ChargingStation{ChargerID: chargerID, OwnerID: ownerID, PricePerKWhCent: 35, GuestMaxAmountCent: 2500}
	require.NoError(t, repo.CreateStation(context.Background(), st))
	return st
}

func TestStationLookupAndNotFound(t *testing.T) {
	ctx := context.Background()
	repo := storagetest.NewRepo(t)

	st := seedStation(t, repo, 1, "CP-001")
	assert.Equal(t, "Unavailable", st.Status)

	got, err := repo.GetStationByChargerID(ctx, "CP-001")
	require.NoError(t, err)
	assert.Equal(t, st.ID, got.ID)

	_, err = repo.GetStationByChargerID(ctx, "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	require.NoError(t, repo.UpdateStationStatus(ctx, st.ID, "Available"))
	got, err = repo.GetStation(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, "Available", got.Status)

	assert.ErrorIs(t, repo.UpdateStationStatus(ctx, 999, "Available"), storage.ErrNotFound)
}

func TestReplacePartnersAndTags(t *testing.T) {
	ctx := context.Background()
	repo := storagetest.NewRepo(t)
	st := seedStation(t, repo, 1, "CP-002")

	require.NoError(t, repo.ReplacePartners(ctx, st.ID, []int64{7, 3, 7}))
	ids, err := repo.ListPartnerIDs(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7}, ids)

	require.NoError(t, repo.ReplacePartners(ctx, st.ID, nil))
	ids, err = repo.ListPartnerIDs(ctx, st.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, repo.ReplaceRFIDTags(ctx, st.ID, []models.StationRFIDTag{
		{TagID: "B", IsAllowed: false},
		{TagID: "A", IsAllowed: true},
	}))
	tags, err := repo.ListRFIDTags(ctx, st.ID)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "A", tags[0].TagID)
	assert.False(t, tags[1].IsAllowed)
}

func TestWithTxRollback(t *testing.T) {
	ctx := context.Background()
	repo := storagetest.NewRepo(t)

	boom := errors.New("boom")
	err := repo.WithTx(ctx, func(tx storage.Repo) error {
		require.NoError(t, tx.CreateUser(ctx, &models.User{Name: "tmp"}))
		// 嵌套调用复用同一事务
		return tx.WithTx(ctx, func(inner storage.Repo) error { return boom })
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.GetUser(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInsertSessionIfAbsent(t *testing.T) {
	ctx := context.Background()
	repo := storagetest.NewRepo(t)

	created, err := repo.InsertSessionIfAbsent(ctx, &models.ChargingSession{TransactionID: "T-1", StationID: 1, Status: models.SessionStarted})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.InsertSessionIfAbsent(ctx, &models.ChargingSession{TransactionID: "T-1", StationID: 1, Status: models.SessionEnded})
	require.NoError(t, err)
	assert.False(t, created)

	s, err := repo.LockSessionByTransactionID(ctx, "T-1")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStarted, s.Status)
}

func TestListRequestsByOwnerExcludesSelf(t *testing.T) {
	ctx := context.Background()
	repo := storagetest.NewRepo(t)
	st := seedStation(t, repo, 10, "CP-003")

	own := &models.ChargingRequest{Reference: "R-1", RequesterID: 10, StationID: st.ID, VehicleID: 1, Status: models.RequestDraft}
	guest := &models.ChargingRequest{Reference: "R-2", RequesterID: 20, StationID: st.ID, VehicleID: 2, Status: models.RequestRequested}
	require.NoError(t, repo.CreateRequest(ctx, own))
	require.NoError(t, repo.CreateRequest(ctx, guest))

	list, err := repo.ListRequestsByOwner(ctx, 10, 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "R-2", list[0].Reference)

	mine, err := repo.ListRequestsByRequester(ctx, 10, 0, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
}

func TestPendingCapturesAndStuckRequests(t *testing.T) {
	ctx := context.Background()
	repo := storagetest.NewRepo(t)

	require.NoError(t, repo.CreateOrder(ctx, &models.FinancialOrder{RequestID: 1, CustomerID: 1, SellerID: 2, AmountCent: 100, CaptureState: models.CaptureFailed, CaptureAttempts: 1}))
	require.NoError(t, repo.CreateOrder(ctx, &models.FinancialOrder{RequestID: 2, CustomerID: 1, SellerID: 2, AmountCent: 100, CaptureState: models.CaptureDone}))
	require.NoError(t, repo.CreateOrder(ctx, &models.FinancialOrder{RequestID: 3, CustomerID: 1, SellerID: 2, AmountCent: 100, CaptureState: models.CapturePending, CaptureAttempts: 5}))

	pending, err := repo.ListPendingCaptures(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(1), pending[0].RequestID)

	old := time.Now().Add(-10 * time.Hour)
	require.NoError(t, repo.CreateRequest(ctx, &models.ChargingRequest{Reference: "R-S", RequesterID: 1, StationID: 1, VehicleID: 1, Status: models.RequestInProgress, StartedAt: &old}))
	stuck, err := repo.ListStuckRequests(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, stuck, 1)
}

func TestDeviceTokensAndLogs(t *testing.T) {
	ctx := context.Background()
	repo := storagetest.NewRepo(t)

	require.NoError(t, repo.UpsertDeviceToken(ctx, &models.DeviceToken{UserID: 1, Token: "ExponentPushToken[a]", Platform: "expo"}))
	require.NoError(t, repo.UpsertDeviceToken(ctx, &models.DeviceToken{UserID: 2, Token: "ExponentPushToken[a]", Platform: "expo"}))

	tokens, err := repo.ListActiveDeviceTokens(ctx, 2)
	require.NoError(t, err)
	require.Len(t, tokens, 1)

	require.NoError(t, repo.DeactivateDeviceToken(ctx, "ExponentPushToken[a]"))
	tokens, err = repo.ListActiveDeviceTokens(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	require.NoError(t, repo.AppendWallboxLog(ctx, &models.WallboxLog{StationID: 1, Direction: models.DirectionC2S, Message: "Heartbeat", NotNecessary: true}))
	require.NoError(t, repo.AppendWallboxLog(ctx, &models.WallboxLog{StationID: 1, Direction: models.DirectionS2C, Message: "RemoteStart"}))
	n, err := repo.DeleteUnnecessaryLogs(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
