package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/api/middleware"
	"github.com/taoyao-code/wallbox-server/internal/charging"
	"github.com/taoyao-code/wallbox-server/internal/csms"
)

// RequestHandler 充电请求接口
type RequestHandler struct {
	svc    *charging.Service
	logger *zap.Logger
}

func NewRequestHandler(svc *charging.Service, logger *zap.Logger) *RequestHandler {
	return &RequestHandler{svc: svc, logger: logger}
}

// RequestDTO 请求详情（含按钮状态）
type RequestDTO struct {
	ID                    int64         `json:"id"`
	Reference             string        `json:"reference"`
	Status                string        `json:"status"`
	Role                  charging.Role `json:"role"`
	StationID             int64         `json:"station_id"`
	ChargerID             string        `json:"charger_id,omitempty"`
	VehicleID             int64         `json:"vehicle_id"`
	RequesterID           int64         `json:"requester_id"`
	PaymentMethod         *string       `json:"payment_method,omitempty"`
	ChargingPowerKW       *float64      `json:"charging_power_kw,omitempty"`
	TransactionState      string        `json:"transaction_state,omitempty"`
	PaymentLink           *string       `json:"payment_link,omitempty"`
	ScheduledAt           *time.Time    `json:"scheduled_at,omitempty"`
	RequestedAt           *time.Time    `json:"requested_at,omitempty"`
	StartedAt             *time.Time    `json:"started_at,omitempty"`
	CompletedAt           *time.Time    `json:"completed_at,omitempty"`
	CancelledAt           *time.Time    `json:"cancelled_at,omitempty"`
	MaxAmount             csms.Decimal  `json:"max_amount,omitempty"`
	EstimatedMaxEnergyKWh float64       `json:"estimated_max_energy_kwh,omitempty"`
	Session               *SessionDTO   `json:"session,omitempty"`
	Gate                  charging.Gate `json:"gate"`
	CreatedAt             time.Time     `json:"created_at"`
}

// SessionDTO 会话摘要
type SessionDTO struct {
	TransactionID  string       `json:"transaction_id"`
	Status         string       `json:"status"`
	TotalEnergyKWh *float64     `json:"total_energy_kwh,omitempty"`
	Cost           csms.Decimal `json:"cost,omitempty"`
	StartTime      *time.Time   `json:"start_time,omitempty"`
	StopTime       *time.Time   `json:"stop_time,omitempty"`
}

func toRequestDTO(v *charging.RequestView) RequestDTO {
	r := v.Request
	out := RequestDTO{
		ID:                    r.ID,
		Reference:             r.Reference,
		Status:                r.Status,
		Role:                  v.Role,
		StationID:             r.StationID,
		VehicleID:             r.VehicleID,
		RequesterID:           r.RequesterID,
		PaymentMethod:         r.PaymentMethod,
		ChargingPowerKW:       r.ChargingPowerKW,
		TransactionState:      r.TransactionState,
		ScheduledAt:           r.ScheduledAt,
		RequestedAt:           r.RequestedAt,
		StartedAt:             r.StartedAt,
		CompletedAt:           r.CompletedAt,
		CancelledAt:           r.CancelledAt,
		EstimatedMaxEnergyKWh: v.EstimatedMaxEnergyKWh,
		Gate:                  v.Gate,
		CreatedAt:             r.CreatedAt,
	}
	// 支付链接只在需要支付时下发
	if v.Gate.ShowPaymentLink {
		out.PaymentLink = r.PaymentLink
	}
	if v.Station != nil {
		out.ChargerID = v.Station.ChargerID
	}
	if v.Order != nil && v.Order.AmountCent > 0 {
		out.MaxAmount = csms.FormatCents(v.Order.AmountCent)
	}
	if s := v.Session; s != nil {
		sd := &SessionDTO{
			TransactionID:  s.TransactionID,
			Status:         s.Status,
			TotalEnergyKWh: s.TotalEnergyKWh,
			StartTime:      s.StartTime,
			StopTime:       s.StopTime,
		}
		if s.CostCent != nil {
			sd.Cost = csms.FormatCents(*s.CostCent)
		}
		out.Session = sd
	}
	return out
}

// CreateRequestBody 新建请求
type CreateRequestBody struct {
	StationID       int64      `json:"station_id" binding:"required"`
	VehicleID       int64      `json:"vehicle_id" binding:"required"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
	ChargingPowerKW *float64   `json:"charging_power_kw"`
	PaymentMethod   *string    `json:"payment_method"`
}

// UpdateRequestBody 草稿修改
type UpdateRequestBody struct {
	VehicleID       *int64     `json:"vehicle_id"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
	ChargingPowerKW *float64   `json:"charging_power_kw"`
	PaymentMethod   *string    `json:"payment_method"`
}

// ApproveBody 审批
type ApproveBody struct {
	PaymentMethod string `json:"payment_method"`
}

// ScheduleBody 排期
type ScheduleBody struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// respondView 写操作后返回最新详情
func (h *RequestHandler) respondView(c *gin.Context, id int64, status int, message string) {
	v, err := h.svc.View(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, status, message, toRequestDTO(v))
}

// Create 新建充电请求
// @Summary 新建充电请求
// @Tags 充电请求
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateRequestBody true "请求参数"
// @Success 201 {object} StandardResponse
// @Failure 400 {object} StandardResponse
// @Router /api/v1/requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	req, err := h.svc.Create(c.Request.Context(), middleware.UserID(c), charging.CreateInput{
		StationID:       body.StationID,
		VehicleID:       body.VehicleID,
		ScheduledAt:     body.ScheduledAt,
		ChargingPowerKW: body.ChargingPowerKW,
		PaymentMethod:   body.PaymentMethod,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	h.respondView(c, req.ID, http.StatusCreated, "charging request created")
}

// Get 请求详情
// @Summary 充电请求详情
// @Tags 充电请求
// @Produce json
// @Security BearerAuth
// @Param id path int true "请求ID"
// @Success 200 {object} StandardResponse
// @Failure 403 {object} StandardResponse
// @Failure 404 {object} StandardResponse
// @Router /api/v1/requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	h.respondView(c, id, http.StatusOK, "ok")
}

// Update 修改草稿
// @Summary 修改草稿
// @Tags 充电请求
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "请求ID"
// @Param request body UpdateRequestBody true "修改项"
// @Success 200 {object} StandardResponse
// @Router /api/v1/requests/{id} [patch]
func (h *RequestHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	var body UpdateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	_, err = h.svc.Update(c.Request.Context(), middleware.UserID(c), id, charging.UpdateInput{
		VehicleID:       body.VehicleID,
		ScheduledAt:     body.ScheduledAt,
		ChargingPowerKW: body.ChargingPowerKW,
		PaymentMethod:   body.PaymentMethod,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	h.respondView(c, id, http.StatusOK, "charging request updated")
}

// Delete 删除草稿
// @Summary 删除草稿
// @Tags 充电请求
// @Security BearerAuth
// @Param id path int true "请求ID"
// @Success 200 {object} StandardResponse
// @Router /api/v1/requests/{id} [delete]
func (h *RequestHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.UserID(c), id); err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, "charging request deleted", gin.H{"id": id})
}

// Submit 提交审批
// @Summary 访客提交审批
// @Tags 充电请求
// @Security BearerAuth
// @Param id path int true "请求ID"
// @Success 200 {object} StandardResponse
// @Failure 400 {object} StandardResponse "ROLE_MISMATCH / INVALID_STATE"
// @Router /api/v1/requests/{id}/submit [post]
func (h *RequestHandler) Submit(c *gin.Context) {
	h.transition(c, "submitted for approval", func(uid, id int64) error {
		_, err := h.svc.Submit(c.Request.Context(), uid, id)
		return err
	})
}

// Approve 站主审批
// @Summary 站主审批访客请求
// @Tags 充电请求
// @Accept json
// @Security BearerAuth
// @Param id path int true "请求ID"
// @Param request body ApproveBody false "支付方式 cash | pre-authorize"
// @Success 200 {object} StandardResponse
// @Router /api/v1/requests/{id}/approve [post]
func (h *RequestHandler) Approve(c *gin.Context) {
	var body ApproveBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, h.logger, err)
			return
		}
	}
	h.transition(c, "charging request approved", func(uid, id int64) error {
		_, err := h.svc.Approve(c.Request.Context(), uid, id, body.PaymentMethod)
		return err
	})
}

// Schedule 排期
// @Summary 设定排期
// @Tags 充电请求
// @Accept json
// @Security BearerAuth
// @Param id path int true "请求ID"
// @Param request body ScheduleBody false "排期时间，缺省沿用草稿中的时间"
// @Success 200 {object} StandardResponse
// @Router /api/v1/requests/{id}/schedule [post]
func (h *RequestHandler) Schedule(c *gin.Context) {
	var body ScheduleBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			badRequest(c, h.logger, err)
			return
		}
	}
	h.transition(c, "charging request scheduled", func(uid, id int64) error {
		_, err := h.svc.Schedule(c.Request.Context(), uid, id, body.ScheduledAt)
		return err
	})
}

// Start 远程启动
// @Summary 远程启动充电
// @Tags 充电请求
// @Security BearerAuth
// @Param id path int true "请求ID"
// @Success 200 {object} StandardResponse
// @Failure 502 {object} StandardResponse "CSMS 调用失败，状态不变"
// @Router /api/v1/requests/{id}/start [post]
func (h *RequestHandler) Start(c *gin.Context) {
	h.transition(c, "remote start accepted", func(uid, id int64) error {
		_, err := h.svc.Start(c.Request.Context(), uid, id)
		return err
	})
}

// Complete 远程停止；完成状态以会话回调为准
// @Summary 远程停止充电
// @Tags 充电请求
// @Security BearerAuth
// @Param id path int true "请求ID"
// @Success 202 {object} StandardResponse
// @Router /api/v1/requests/{id}/complete [post]
func (h *RequestHandler) Complete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	res, err := h.svc.Complete(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusAccepted, "remote stop sent", gin.H{"id": id, "csms": res})
}

// Cancel 站主取消
// @Summary 取消请求
// @Tags 充电请求
// @Security BearerAuth
// @Param id path int true "请求ID"
// @Success 200 {object} StandardResponse
// @Router /api/v1/requests/{id}/cancel [post]
func (h *RequestHandler) Cancel(c *gin.Context) {
	h.transition(c, "charging request cancelled", func(uid, id int64) error {
		_, err := h.svc.Cancel(c.Request.Context(), uid, id)
		return err
	})
}

func (h *RequestHandler) transition(c *gin.Context, message string, fn func(uid, id int64) error) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if err := fn(middleware.UserID(c), id); err != nil {
		fail(c, h.logger, err)
		return
	}
	h.respondView(c, id, http.StatusOK, message)
}

// ListMine 我的请求
// @Summary 我发起的请求
// @Tags 充电请求
// @Produce json
// @Security BearerAuth
// @Param limit query int false "每页数量(默认20)"
// @Param offset query int false "偏移量(默认0)"
// @Success 200 {object} StandardResponse
// @Router /api/v1/requests/mine [get]
func (h *RequestHandler) ListMine(c *gin.Context) {
	limit, offset := page(c)
	list, err := h.svc.ListMine(c.Request.Context(), middleware.UserID(c), limit, offset)
	h.respondList(c, list, err)
}

// ListIncoming 站主收到的请求
// @Summary 我的站点收到的请求
// @Tags 充电请求
// @Produce json
// @Security BearerAuth
// @Param limit query int false "每页数量(默认20)"
// @Param offset query int false "偏移量(默认0)"
// @Success 200 {object} StandardResponse
// @Router /api/v1/requests/incoming [get]
func (h *RequestHandler) ListIncoming(c *gin.Context) {
	limit, offset := page(c)
	list, err := h.svc.ListForOwner(c.Request.Context(), middleware.UserID(c), limit, offset)
	h.respondList(c, list, err)
}

func (h *RequestHandler) respondList(c *gin.Context, list []charging.RequestView, err error) {
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	out := make([]RequestDTO, 0, len(list))
	for i := range list {
		out = append(out, toRequestDTO(&list[i]))
	}
	ok(c, http.StatusOK, "ok", gin.H{"requests": out, "count": len(out)})
}

