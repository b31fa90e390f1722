package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/api"
	"github.com/taoyao-code/wallbox-server/internal/api/middleware"
	"github.com/taoyao-code/wallbox-server/internal/charging"
	chargingmocks "github.com/taoyao-code/wallbox-server/internal/charging/mocks"
	"github.com/taoyao-code/wallbox-server/internal/csms"
	"github.com/taoyao-code/wallbox-server/internal/dedup"
	"github.com/taoyao-code/wallbox-server/internal/payment"
	"github.com/taoyao-code/wallbox-server/internal/station"
	stationmocks "github.com/taoyao-code/wallbox-server/internal/station/mocks"
	"github.com/taoyao-code/wallbox-server/internal/storage/gormrepo"
	"github.com/taoyao-code/wallbox-server/internal/storage/models"
	"github.com/taoyao-code/wallbox-server/internal/storage/storagetest"
)

const (
	webhookToken  = "csms-secret"
	paymentSecret = "pay-secret"
	ownerID       = int64(1)
	partnerID     = int64(2)
	guestID       = int64(3)
)

type env struct {
	ctx      context.Context
	router   *gin.Engine
	repo     *gormrepo.Repository
	csms     *chargingmocks.MockCSMS
	gateway  *chargingmocks.MockGateway
	svc      *charging.Service
	station  *models.ChargingStation
	vehicles map[int64]int64
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)
	e := &env{
		ctx:      context.Background(),
		router:   gin.New(),
		repo:     storagetest.NewRepo(t),
		csms:     chargingmocks.NewMockCSMS(ctrl),
		gateway:  chargingmocks.NewMockGateway(ctrl),
		vehicles: map[int64]int64{},
	}
	for _, name := range []string{"owner", "partner", "guest"} {
		require.NoError(t, e.repo.CreateUser(e.ctx, &models.User{Name: name, Active: true}))
	}
	for _, uid := range []int64{ownerID, partnerID, guestID} {
		v := &models.Vehicle{OwnerID: uid, Plate: "PL-" + strconv.FormatInt(uid, 10)}
		require.NoError(t, e.repo.CreateVehicle(e.ctx, v))
		e.vehicles[uid] = v.ID
	}
	e.station = &models.ChargingStation{ChargerID: "CP-1", OwnerID: ownerID, PricePerKWhCent: 40, GuestMaxAmountCent: 2000, Status: "Available"}
	require.NoError(t, e.repo.CreateStation(e.ctx, e.station))
	require.NoError(t, e.repo.ReplacePartners(e.ctx, e.station.ID, []int64{partnerID}))

	notifier := chargingmocks.NewMockNotifier(ctrl)
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any(), gomock.Any()).Return(true).AnyTimes()

	logger := zap.NewNop()
	e.svc = charging.NewService(charging.Deps{
		Repo:     e.repo,
		CSMS:     e.csms,
		Notifier: notifier,
		Payments: payment.NewProviders(e.gateway),
		Logger:   logger,
	})
	stations := station.NewService(e.repo, stationmocks.NewMockCSMS(ctrl), nil, logger)
	dd := dedup.New(nil, logger, time.Minute)

	api.RegisterRoutes(e.router, api.Handlers{
		Requests: api.NewRequestHandler(e.svc, logger),
		Stations: api.NewStationHandler(stations, logger),
		Admin:    api.NewAdminHandler(e.svc, logger),
		Webhooks: api.NewWebhookHandler(e.svc, stations, e.repo, dd, nil, logger),
		Payments: api.NewPaymentHandler(e.svc, paymentSecret, dd, nil, logger),
	}, api.RouteConfig{
		Auth:         middleware.AuthConfig{AdminKeys: []string{"admin-key"}},
		WebhookToken: webhookToken,
	}, logger)
	return e
}

type result struct {
	Status int
	Body   map[string]interface{}
}

func (e *env) do(t *testing.T, method, path string, body interface{}, headers map[string]string) result {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case nil:
	case []byte:
		raw = b
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(b)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	out := result{Status: w.Code, Body: map[string]interface{}{}}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out.Body), w.Body.String())
	}
	return out
}

func asUser(id int64) map[string]string {
	return map[string]string{"X-User-ID": strconv.FormatInt(id, 10)}
}

func csmsAuth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + webhookToken}
}

func data(t *testing.T, r result) map[string]interface{} {
	t.Helper()
	d, ok := r.Body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data: %v", r.Body)
	return d
}

func TestWebhookRequiresToken(t *testing.T) {
	e := newEnv(t)
	body := map[string]string{"charger_id": "CP-1", "status": "Faulted"}

	r := e.do(t, http.MethodPost, "/api/wallbox/status-update", body, nil)
	assert.Equal(t, http.StatusUnauthorized, r.Status)

	r = e.do(t, http.MethodPost, "/api/wallbox/status-update", body, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, r.Status)
	assert.Equal(t, "TOKEN_INVALID", r.Body["code"])

	r = e.do(t, http.MethodPost, "/api/wallbox/status-update", body, csmsAuth())
	require.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, true, r.Body["success"])
	assert.Equal(t, "Faulted", r.Body["new_status"])
}

func TestSessionWebhookValidation(t *testing.T) {
	e := newEnv(t)

	r := e.do(t, http.MethodPost, "/api/wallbox/sessions", map[string]string{"status": "Started"}, csmsAuth())
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "VALIDATION_ERROR", r.Body["code"])

	r = e.do(t, http.MethodPost, "/api/wallbox/sessions", "", csmsAuth())
	assert.Equal(t, http.StatusBadRequest, r.Status)

	r = e.do(t, http.MethodPost, "/api/wallbox/sessions", map[string]interface{}{
		"transaction_id": "T-1", "charging_station_id": "CP-X", "customer_id": 3, "status": "Started",
	}, csmsAuth())
	assert.Equal(t, http.StatusNotFound, r.Status)

	r = e.do(t, http.MethodPost, "/api/wallbox/sessions", map[string]interface{}{
		"transaction_id": "T-1", "charging_station_id": "CP-1", "customer_id": 3, "status": "Paused",
	}, csmsAuth())
	assert.Equal(t, http.StatusBadRequest, r.Status)

	r = e.do(t, http.MethodPost, "/api/wallbox/sessions", map[string]interface{}{
		"transaction_id": "T-1", "charging_station_id": "CP-1", "customer_id": 3, "status": "Started", "cost": "abc",
	}, csmsAuth())
	assert.Equal(t, http.StatusBadRequest, r.Status)
}

func TestMonthlyUserLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t)
	user := asUser(partnerID)

	r := e.do(t, http.MethodPost, "/api/v1/requests", map[string]interface{}{
		"station_id": e.station.ID, "vehicle_id": e.vehicles[partnerID],
	}, user)
	require.Equal(t, http.StatusCreated, r.Status, r.Body)
	id := int64(data(t, r)["id"].(float64))
	path := "/api/v1/requests/" + strconv.FormatInt(id, 10)

	// 月租用户无需审批
	r = e.do(t, http.MethodPost, path+"/submit", nil, user)
	assert.Equal(t, http.StatusBadRequest, r.Status)
	assert.Equal(t, "ROLE_MISMATCH", r.Body["code"])

	r = e.do(t, http.MethodPost, path+"/schedule", map[string]interface{}{"scheduled_at": time.Now().Add(time.Hour)}, user)
	require.Equal(t, http.StatusOK, r.Status, r.Body)
	assert.Equal(t, models.RequestScheduled, data(t, r)["status"])

	// 他人不可见
	r = e.do(t, http.MethodGet, path, nil, asUser(guestID))
	assert.Equal(t, http.StatusForbidden, r.Status)

	e.csms.EXPECT().RemoteStart(gomock.Any(), gomock.Any()).Return(&csms.CommandResult{Status: "Accepted"}, nil)
	r = e.do(t, http.MethodPost, path+"/start", nil, user)
	require.Equal(t, http.StatusOK, r.Status, r.Body)
	assert.Equal(t, models.RequestInProgress, data(t, r)["status"])

	started := map[string]interface{}{
		"transaction_id": "T-100", "charging_station_id": "CP-1", "customer_id": partnerID,
		"status": "Started", "request_id": strconv.FormatInt(id, 10), "start_meter": "12.5",
		"start_time": "2026-01-02T10:00:00Z",
	}
	r = e.do(t, http.MethodPost, "/api/wallbox/sessions", started, csmsAuth())
	require.Equal(t, http.StatusOK, r.Status, r.Body)
	assert.Equal(t, "created", r.Body["action"])
	assert.Equal(t, "T-100", r.Body["session_name"])

	// 相同报文重放
	r = e.do(t, http.MethodPost, "/api/wallbox/sessions", started, csmsAuth())
	require.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, "duplicate", r.Body["action"])

	e.csms.EXPECT().Unlock(gomock.Any(), "CP-1").Return(&csms.CommandResult{Status: "Accepted"}, nil)
	ended := map[string]interface{}{
		"transaction_id": "T-100", "charging_station_id": "CP-1", "customer_id": partnerID,
		"status": "Ended", "stop_meter": 15.0, "total_energy": 2.5, "cost": "1.00",
		"start_time": "2026-01-02T10:00:00Z", "end_time": "2026-01-02T11:05:00Z",
	}
	r = e.do(t, http.MethodPost, "/api/wallbox/sessions", ended, csmsAuth())
	require.Equal(t, http.StatusOK, r.Status, r.Body)
	assert.Equal(t, "updated", r.Body["action"])

	req, err := e.repo.GetRequest(e.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCompleted, req.Status)
	sess, err := e.repo.GetSessionByTransactionID(e.ctx, "T-100")
	require.NoError(t, err)
	require.NotNil(t, sess.DurationSec)
	assert.Equal(t, int64(3900), *sess.DurationSec)
	require.NotNil(t, sess.CostCent)
	assert.Equal(t, int64(100), *sess.CostCent)

	r = e.do(t, http.MethodGet, path, nil, user)
	require.Equal(t, http.StatusOK, r.Status)
	session := data(t, r)["session"].(map[string]interface{})
	assert.Equal(t, "1.00", session["cost"])
}

func sign(t *testing.T, body []byte, nonce string, ts time.Time) map[string]string {
	t.Helper()
	path := "/api/payments/transactions"
	return map[string]string{
		"X-Timestamp": strconv.FormatInt(ts.Unix(), 10),
		"X-Nonce":     nonce,
		"X-Signature": payment.Sign(paymentSecret, payment.Canonical(http.MethodPost, path, ts.Unix(), nonce, body)),
	}
}

func TestPaymentCallback(t *testing.T) {
	e := newEnv(t)
	req, err := e.svc.Create(e.ctx, guestID, charging.CreateInput{StationID: e.station.ID, VehicleID: e.vehicles[guestID]})
	require.NoError(t, err)
	_, err = e.svc.Submit(e.ctx, guestID, req.ID)
	require.NoError(t, err)
	e.gateway.EXPECT().CreatePaymentLink(gomock.Any(), gomock.Any()).
		Return(&payment.Link{URL: "https://pay/abc", Reference: "PAY-1"}, nil)
	_, err = e.svc.Approve(e.ctx, ownerID, req.ID, models.PaymentPreAuthorize)
	require.NoError(t, err)

	body := []byte(`{"reference":"PAY-1","state":"authorized"}`)
	path := "/api/payments/transactions"

	r := e.do(t, http.MethodPost, path, body, map[string]string{"X-Signature": "00", "X-Nonce": "n1", "X-Timestamp": "1"})
	assert.Equal(t, http.StatusUnauthorized, r.Status)

	// 过期时间戳
	r = e.do(t, http.MethodPost, path, body, sign(t, body, "n0", time.Now().Add(-time.Hour)))
	assert.Equal(t, http.StatusUnauthorized, r.Status)

	r = e.do(t, http.MethodPost, path, body, sign(t, body, "n1", time.Now()))
	require.Equal(t, http.StatusOK, r.Status, r.Body)
	assert.Equal(t, models.TxAuthorized, data(t, r)["state"])

	got, err := e.repo.GetRequest(e.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxAuthorized, got.TransactionState)

	r = e.do(t, http.MethodPost, path, body, sign(t, body, "n1", time.Now()))
	require.Equal(t, http.StatusOK, r.Status)
	assert.Equal(t, "duplicate", r.Body["message"])

	unknown := []byte(`{"reference":"PAY-404","state":"done"}`)
	r = e.do(t, http.MethodPost, path, unknown, sign(t, unknown, "n2", time.Now()))
	assert.Equal(t, http.StatusNotFound, r.Status)
}

func TestWallboxLogs(t *testing.T) {
	e := newEnv(t)

	r := e.do(t, http.MethodPost, "/api/wallbox/logs", map[string]interface{}{
		"message": "BootNotification", "payload": map[string]string{"vendor": "x"}, "charger_id": "CP-1", "direction": "C2S",
	}, csmsAuth())
	require.Equal(t, http.StatusOK, r.Status, r.Body)
	assert.Equal(t, true, r.Body["success"])
	assert.NotZero(t, r.Body["log_id"])

	r = e.do(t, http.MethodPost, "/api/wallbox/logs", map[string]interface{}{
		"message": "x", "payload": "raw", "charger_id": "CP-1", "direction": "sideways",
	}, csmsAuth())
	assert.Equal(t, http.StatusBadRequest, r.Status)

	r = e.do(t, http.MethodPost, "/api/wallbox/logs", map[string]interface{}{"charger_id": "CP-1"}, csmsAuth())
	assert.Equal(t, http.StatusBadRequest, r.Status)
	fields := r.Body["details"].(map[string]interface{})["fields"].([]interface{})
	assert.ElementsMatch(t, []interface{}{"message", "payload", "direction"}, fields)

	r = e.do(t, http.MethodPost, "/api/wallbox/logs", map[string]interface{}{
		"message": "x", "payload": "raw", "charger_id": "CP-404", "direction": "S2C",
	}, csmsAuth())
	assert.Equal(t, http.StatusNotFound, r.Status)
}

func TestAdminRoutesRequireKey(t *testing.T) {
	e := newEnv(t)
	r := e.do(t, http.MethodPost, "/api/v1/admin/requests/1/unlock/confirm", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, r.Status)

	r = e.do(t, http.MethodPost, "/api/v1/admin/requests/1/unlock/confirm", nil, map[string]string{"X-API-Key": "nope"})
	assert.Equal(t, http.StatusForbidden, r.Status)

	r = e.do(t, http.MethodPost, "/api/v1/admin/requests/999/unlock/confirm", nil, map[string]string{"X-API-Key": "admin-key"})
	assert.Equal(t, http.StatusNotFound, r.Status)
}

func TestUserRoutesRequireIdentity(t *testing.T) {
	e := newEnv(t)
	r := e.do(t, http.MethodGet, "/api/v1/requests/mine", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, r.Status)
	assert.NotEmpty(t, r.Body["request_id"])

	r = e.do(t, http.MethodGet, "/api/v1/requests/mine", nil, asUser(guestID))
	assert.Equal(t, http.StatusOK, r.Status)
}
