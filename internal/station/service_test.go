package station_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/apperr"
	"github.com/taoyao-code/wallbox-server/internal/csms"
	"github.com/taoyao-code/wallbox-server/internal/station"
	"github.com/taoyao-code/wallbox-server/internal/station/mocks"
	"github.com/taoyao-code/wallbox-server/internal/storage/gormrepo"
	"github.com/taoyao-code/wallbox-server/internal/storage/storagetest"
)

const ownerID = int64(10)

func setup(t *testing.T) (*station.Service, *mocks.MockCSMS, *gormrepo.Repository) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockCSMS(ctrl)
	repo := storagetest.NewRepo(t)
	return station.NewService(repo, m, nil, zap.NewNop()), m, repo
}

func register(t *testing.T, svc *station.Service, m *mocks.MockCSMS) int64 {
	t.Helper()
	m.EXPECT().Sync(gomock.Any(), gomock.Any()).
		Return(&csms.SyncResult{Created: true, Status: "Unavailable", WSURL: "wss://csms/CP-1"}, nil)
	st, err := svc.Register(context.Background(), ownerID, station.RegisterInput{
		ChargerID: "CP-1", PricePerKWhCent: 35, GuestMaxAmountCent: 2500,
		RFIDTags: []csms.RFIDTag{{TagID: "A", IsAllowed: true}},
	})
	require.NoError(t, err)
	return st.ID
}

func TestRegisterSyncsAndStoresWSURL(t *testing.T) {
	svc, m, repo := setup(t)
	id := register(t, svc, m)

	st, err := repo.GetStation(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, st.WSURL)
	assert.Equal(t, "wss://csms/CP-1", *st.WSURL)
	assert.NotNil(t, st.LastSyncedAt)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, ownerID, station.RegisterInput{PricePerKWhCent: 1, GuestMaxAmountCent: 1})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Register(ctx, ownerID, station.RegisterInput{ChargerID: "CP-X", GuestMaxAmountCent: 1})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.Register(ctx, ownerID, station.RegisterInput{ChargerID: "CP-X", PricePerKWhCent: 1})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRegisterRollsBackWhenSyncFails(t *testing.T) {
	svc, m, repo := setup(t)
	m.EXPECT().Sync(gomock.Any(), gomock.Any()).Return(nil, apperr.External("csms down", nil))

	_, err := svc.Register(context.Background(), ownerID, station.RegisterInput{ChargerID: "CP-2", PricePerKWhCent: 35, GuestMaxAmountCent: 100})
	require.Error(t, err)

	_, err = repo.GetStationByChargerID(context.Background(), "CP-2")
	assert.Error(t, err)
}

func TestUpdateSyncsOnlyOnRemoteFields(t *testing.T) {
	svc, m, _ := setup(t)
	id := register(t, svc, m)
	ctx := context.Background()

	// 名称与访客上限只影响本地
	name := "Garage"
	guestCap := int64(4000)
	st, err := svc.Update(ctx, ownerID, id, station.UpdateInput{Name: &name, GuestMaxAmountCent: &guestCap})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), st.GuestMaxAmountCent)

	// 电价变化触发同步，并回写远端状态
	price := int64(40)
	m.EXPECT().Sync(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s csms.StationSnapshot) (*csms.SyncResult, error) {
			assert.Equal(t, int64(40), s.PricePerKWhCent)
			assert.Len(t, s.RFIDTags, 1)
			return &csms.SyncResult{Status: "Available"}, nil
		})
	st, err = svc.Update(ctx, ownerID, id, station.UpdateInput{PricePerKWhCent: &price})
	require.NoError(t, err)
	assert.Equal(t, "Available", st.Status)

	// 相同电价不再同步
	_, err = svc.Update(ctx, ownerID, id, station.UpdateInput{PricePerKWhCent: &price})
	require.NoError(t, err)

	lat := 24.7
	m.EXPECT().Sync(gomock.Any(), gomock.Any()).Return(&csms.SyncResult{Status: "Available"}, nil)
	_, err = svc.Update(ctx, ownerID, id, station.UpdateInput{Latitude: &lat})
	require.NoError(t, err)

	exp := time.Now().Add(30 * 24 * time.Hour)
	m.EXPECT().Sync(gomock.Any(), gomock.Any()).Return(&csms.SyncResult{Status: "Available"}, nil)
	_, err = svc.Update(ctx, ownerID, id, station.UpdateInput{SubscriptionExpiresAt: &exp})
	require.NoError(t, err)
}

func TestOnlyOwnerManages(t *testing.T) {
	svc, m, _ := setup(t)
	id := register(t, svc, m)

	name := "x"
	_, err := svc.Update(context.Background(), 99, id, station.UpdateInput{Name: &name})
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
	_, err = svc.SetPartners(context.Background(), 99, id, []int64{1})
	assert.ErrorIs(t, err, apperr.ErrAccessDenied)
}

func TestSetRFIDTagsSyncs(t *testing.T) {
	svc, m, _ := setup(t)
	id := register(t, svc, m)

	m.EXPECT().Sync(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, s csms.StationSnapshot) (*csms.SyncResult, error) {
			assert.Equal(t, []csms.RFIDTag{{TagID: "B", IsAllowed: false}, {TagID: "C", IsAllowed: true}}, s.RFIDTags)
			return &csms.SyncResult{Status: "Available"}, nil
		})
	tags, err := svc.SetRFIDTags(context.Background(), ownerID, id, []csms.RFIDTag{
		{TagID: "C", IsAllowed: true}, {TagID: "B", IsAllowed: true}, {TagID: "B", IsAllowed: false},
	})
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}

func TestSetPartnersExcludesOwner(t *testing.T) {
	svc, m, _ := setup(t)
	id := register(t, svc, m)

	ids, err := svc.SetPartners(context.Background(), ownerID, id, []int64{ownerID, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, ids)
}

func TestApplyStatus(t *testing.T) {
	svc, m, _ := setup(t)
	register(t, svc, m)
	ctx := context.Background()

	st, err := svc.ApplyStatus(ctx, "CP-1", "Charging")
	require.NoError(t, err)
	assert.Equal(t, "Charging", st.Status)

	_, err = svc.ApplyStatus(ctx, "CP-1", "Exploded")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.ApplyStatus(ctx, "CP-404", "Available")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestResetAndDelete(t *testing.T) {
	svc, m, repo := setup(t)
	id := register(t, svc, m)
	ctx := context.Background()

	_, err := svc.Reset(ctx, ownerID, id, csms.ResetType("Warm"))
	assert.ErrorIs(t, err, apperr.ErrValidation)

	m.EXPECT().Reset(gomock.Any(), "CP-1", csms.ResetSoft).Return(&csms.CommandResult{Status: "Accepted"}, nil)
	res, err := svc.Reset(ctx, ownerID, id, csms.ResetSoft)
	require.NoError(t, err)
	assert.Equal(t, "Accepted", res.Status)

	// 远端删除失败时本地保留
	m.EXPECT().DeleteCharger(gomock.Any(), "CP-1").Return(errors.New("boom"))
	require.Error(t, svc.Delete(ctx, ownerID, id))
	_, err = repo.GetStation(ctx, id)
	require.NoError(t, err)

	m.EXPECT().DeleteCharger(gomock.Any(), "CP-1").Return(nil)
	require.NoError(t, svc.Delete(ctx, ownerID, id))
	_, err = svc.Get(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
