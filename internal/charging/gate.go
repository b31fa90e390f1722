package charging

import "github.com/taoyao-code/wallbox-server/internal/storage/models"

// GateInput 判定所需的请求快照
type GateInput struct {
	Role             Role
	Status           string
	PaymentMethod    string
	StationExists    bool
	HasOrder         bool
	TransactionState string
	PaymentLink      string
}

// Gate 前端按钮与链接的可见性
type Gate struct {
	CanRequestApproval bool `json:"can_request_approval"`
	CanStart           bool `json:"can_start"`
	ShowPaymentLink    bool `json:"show_payment_link"`
	ShowScheduleButton bool `json:"show_schedule_button"`
}

// transactionSet draft 视为尚未产生交易
func transactionSet(state string) bool {
	return state != "" && state != models.TxDraft
}

// Evaluate 纯函数，无副作用
func Evaluate(in GateInput) Gate {
	var g Gate
	g.CanRequestApproval = in.Status == models.RequestDraft && in.StationExists && in.Role == RoleGuest
	g.ShowPaymentLink = in.PaymentLink != "" && in.Status == models.RequestApproved && !transactionSet(in.TransactionState)

	switch in.Role {
	case RoleOwner, RoleMonthlyUser:
		g.ShowScheduleButton = in.Status == models.RequestDraft
		g.CanStart = in.Status == models.RequestScheduled && in.HasOrder && in.StationExists
	case RoleGuest:
		// 预授权已完成的访客可直接开始充电，不再展示排期
		g.ShowScheduleButton = in.Status == models.RequestApproved &&
			(in.PaymentMethod == models.PaymentCash || in.TransactionState != models.TxAuthorized)
		g.CanStart = (in.Status == models.RequestApproved || in.Status == models.RequestScheduled) &&
			in.HasOrder && in.StationExists && in.TransactionState == models.TxAuthorized
	}
	return g
}
