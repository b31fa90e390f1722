package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taoyao-code/wallbox-server/internal/api/middleware"
	"github.com/taoyao-code/wallbox-server/internal/apperr"
	"github.com/taoyao-code/wallbox-server/internal/csms"
	"github.com/taoyao-code/wallbox-server/internal/station"
	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

// StationHandler 充电站接口
type StationHandler struct {
	svc    *station.Service
	logger *zap.Logger
}

func NewStationHandler(svc *station.Service, logger *zap.Logger) *StationHandler {
	return &StationHandler{svc: svc, logger: logger}
}

// StationDTO 对外展示；金额按两位小数字符串输出
type StationDTO struct {
	ID                    int64          `json:"id"`
	ChargerID             string         `json:"charger_id"`
	OwnerID               int64          `json:"owner_id"`
	Name                  string         `json:"name"`
	Status                string         `json:"status"`
	PricePerKWh           csms.Decimal   `json:"price_per_kwh"`
	GuestMaxAmount        csms.Decimal   `json:"guest_max_amount"`
	Latitude              *float64       `json:"latitude,omitempty"`
	Longitude             *float64       `json:"longitude,omitempty"`
	WSURL                 *string        `json:"ws_url,omitempty"`
	SubscriptionExpiresAt *time.Time     `json:"subscription_expires_at,omitempty"`
	LastSyncedAt          *time.Time     `json:"last_synced_at,omitempty"`
	PartnerIDs            []int64        `json:"partner_ids,omitempty"`
	RFIDTags              []csms.RFIDTag `json:"rfid_tags,omitempty"`
}

func toStationDTO(st *models.ChargingStation) StationDTO {
	return StationDTO{
		ID:                    st.ID,
		ChargerID:             st.ChargerID,
		OwnerID:               st.OwnerID,
		Name:                  st.Name,
		Status:                st.Status,
		PricePerKWh:           csms.FormatCents(st.PricePerKWhCent),
		GuestMaxAmount:        csms.FormatCents(st.GuestMaxAmountCent),
		Latitude:              st.Latitude,
		Longitude:             st.Longitude,
		WSURL:                 st.WSURL,
		SubscriptionExpiresAt: st.SubscriptionExpiresAt,
		LastSyncedAt:          st.LastSyncedAt,
	}
}

// RegisterStationBody 注册充电站
type RegisterStationBody struct {
	ChargerID             string         `json:"charger_id" binding:"required"`
	Name                  string         `json:"name"`
	PricePerKWh           csms.Decimal   `json:"price_per_kwh" binding:"required"`
	GuestMaxAmount        csms.Decimal   `json:"guest_max_amount" binding:"required"`
	Latitude              *float64       `json:"latitude"`
	Longitude             *float64       `json:"longitude"`
	SubscriptionExpiresAt *time.Time     `json:"subscription_expires_at"`
	RFIDTags              []csms.RFIDTag `json:"rfid_tags"`
}

// UpdateStationBody 局部更新
type UpdateStationBody struct {
	Name                  *string       `json:"name"`
	PricePerKWh           *csms.Decimal `json:"price_per_kwh"`
	GuestMaxAmount        *csms.Decimal `json:"guest_max_amount"`
	Latitude              *float64      `json:"latitude"`
	Longitude             *float64      `json:"longitude"`
	SubscriptionExpiresAt *time.Time    `json:"subscription_expires_at"`
}

// PartnersBody 月结伙伴
type PartnersBody struct {
	UserIDs []int64 `json:"user_ids"`
}

// RFIDTagsBody RFID 白名单
type RFIDTagsBody struct {
	Tags []csms.RFIDTag `json:"rfid_tags"`
}

// ResetBody 重启方式
type ResetBody struct {
	ResetType csms.ResetType `json:"reset_type" binding:"required"`
}

func parseAmount(field string, d csms.Decimal) (int64, error) {
	cents, err := csms.ParseCents(string(d))
	if err != nil {
		return 0, apperr.Validation("invalid " + field).WithDetail(field, string(d))
	}
	return cents, nil
}

func parseOptionalAmount(field string, d *csms.Decimal) (*int64, error) {
	if d == nil {
		return nil, nil
	}
	cents, err := parseAmount(field, *d)
	if err != nil {
		return nil, err
	}
	return &cents, nil
}

// Register 注册充电站并同步到 CSMS
// @Summary 注册充电站
// @Tags 充电站
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body RegisterStationBody true "充电站参数"
// @Success 201 {object} StandardResponse
// @Failure 400 {object} StandardResponse
// @Failure 502 {object} StandardResponse "CSMS 同步失败，本地不落库"
// @Router /api/v1/stations [post]
func (h *StationHandler) Register(c *gin.Context) {
	var body RegisterStationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	price, err := parseAmount("price_per_kwh", body.PricePerKWh)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	limit, err := parseAmount("guest_max_amount", body.GuestMaxAmount)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	st, err := h.svc.Register(c.Request.Context(), middleware.UserID(c), station.RegisterInput{
		ChargerID:             body.ChargerID,
		Name:                  body.Name,
		PricePerKWhCent:       price,
		GuestMaxAmountCent:    limit,
		Latitude:              body.Latitude,
		Longitude:             body.Longitude,
		SubscriptionExpiresAt: body.SubscriptionExpiresAt,
		RFIDTags:              body.RFIDTags,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusCreated, "station registered", toStationDTO(st))
}

// List 我的充电站
// @Summary 我的充电站
// @Tags 充电站
// @Produce json
// @Security BearerAuth
// @Param limit query int false "每页数量(默认20)"
// @Param offset query int false "偏移量(默认0)"
// @Success 200 {object} StandardResponse
// @Router /api/v1/stations [get]
func (h *StationHandler) List(c *gin.Context) {
	limit, offset := page(c)
	list, err := h.svc.List(c.Request.Context(), middleware.UserID(c), limit, offset)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	out := make([]StationDTO, 0, len(list))
	for i := range list {
		out = append(out, toStationDTO(&list[i]))
	}
	ok(c, http.StatusOK, "ok", gin.H{"stations": out, "count": len(out)})
}

// Get 充电站详情；伙伴与 RFID 仅站主可见
// @Summary 充电站详情
// @Tags 充电站
// @Produce json
// @Security BearerAuth
// @Param id path int true "充电站ID"
// @Success 200 {object} StandardResponse
// @Failure 404 {object} StandardResponse
// @Router /api/v1/stations/{id} [get]
func (h *StationHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	st, partners, tags, err := h.svc.Details(c.Request.Context(), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	dto := toStationDTO(st)
	if st.OwnerID == middleware.UserID(c) {
		dto.PartnerIDs = partners
		for _, t := range tags {
			dto.RFIDTags = append(dto.RFIDTags, csms.RFIDTag{TagID: t.TagID, IsAllowed: t.IsAllowed})
		}
	}
	ok(c, http.StatusOK, "ok", dto)
}

// Update 修改充电站
// @Summary 修改充电站
// @Tags 充电站
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "充电站ID"
// @Param request body UpdateStationBody true "修改项"
// @Success 200 {object} StandardResponse
// @Router /api/v1/stations/{id} [patch]
func (h *StationHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	var body UpdateStationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	price, err := parseOptionalAmount("price_per_kwh", body.PricePerKWh)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	limit, err := parseOptionalAmount("guest_max_amount", body.GuestMaxAmount)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	st, err := h.svc.Update(c.Request.Context(), middleware.UserID(c), id, station.UpdateInput{
		Name:                  body.Name,
		PricePerKWhCent:       price,
		GuestMaxAmountCent:    limit,
		Latitude:              body.Latitude,
		Longitude:             body.Longitude,
		SubscriptionExpiresAt: body.SubscriptionExpiresAt,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, "station updated", toStationDTO(st))
}

// SetPartners 替换月结伙伴
// @Summary 设置月结伙伴
// @Tags 充电站
// @Accept json
// @Security BearerAuth
// @Param id path int true "充电站ID"
// @Param request body PartnersBody true "用户ID列表"
// @Success 200 {object} StandardResponse
// @Router /api/v1/stations/{id}/partners [put]
func (h *StationHandler) SetPartners(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	var body PartnersBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	ids, err := h.svc.SetPartners(c.Request.Context(), middleware.UserID(c), id, body.UserIDs)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, "partners updated", gin.H{"partner_ids": ids})
}

// SetRFIDTags 替换 RFID 白名单
// @Summary 设置 RFID 白名单
// @Tags 充电站
// @Accept json
// @Security BearerAuth
// @Param id path int true "充电站ID"
// @Param request body RFIDTagsBody true "RFID 列表"
// @Success 200 {object} StandardResponse
// @Router /api/v1/stations/{id}/rfid-tags [put]
func (h *StationHandler) SetRFIDTags(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	var body RFIDTagsBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	tags, err := h.svc.SetRFIDTags(c.Request.Context(), middleware.UserID(c), id, body.Tags)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	out := make([]csms.RFIDTag, 0, len(tags))
	for _, t := range tags {
		out = append(out, csms.RFIDTag{TagID: t.TagID, IsAllowed: t.IsAllowed})
	}
	ok(c, http.StatusOK, "rfid tags updated", gin.H{"rfid_tags": out})
}

// Sync 手动同步
// @Summary 同步到 CSMS
// @Tags 充电站
// @Security BearerAuth
// @Param id path int true "充电站ID"
// @Success 200 {object} StandardResponse
// @Router /api/v1/stations/{id}/sync [post]
func (h *StationHandler) Sync(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	st, err := h.svc.Sync(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, "station synced", toStationDTO(st))
}

// Reset 远程重启
// @Summary 远程重启充电桩
// @Tags 充电站
// @Accept json
// @Security BearerAuth
// @Param id path int true "充电站ID"
// @Param request body ResetBody true "Soft | Hard"
// @Success 200 {object} StandardResponse
// @Router /api/v1/stations/{id}/reset [post]
func (h *StationHandler) Reset(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	var body ResetBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, h.logger, err)
		return
	}
	res, err := h.svc.Reset(c.Request.Context(), middleware.UserID(c), id, body.ResetType)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, "reset sent", res)
}

// Delete 删除充电站
// @Summary 删除充电站
// @Tags 充电站
// @Security BearerAuth
// @Param id path int true "充电站ID"
// @Success 200 {object} StandardResponse
// @Router /api/v1/stations/{id} [delete]
func (h *StationHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.UserID(c), id); err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, http.StatusOK, "station deleted", gin.H{"id": id})
}
