package models

// 充电请求状态
const (
	RequestDraft      = "draft"
	RequestRequested  = "requested"
	RequestApproved   = "approved"
	RequestScheduled  = "scheduled"
	RequestInProgress = "in_progress"
	RequestCompleted  = "completed"
	RequestCancelled  = "cancelled"
)

// IsTerminalRequest 完成或取消后请求不可再变更
func IsTerminalRequest(status string) bool {
	return status == RequestCompleted || status == RequestCancelled
}

// 会话状态（CSMS 上报）
const (
	SessionStarted = "Started"
	SessionEnded   = "Ended"
	SessionFailed  = "Failed"
)

func IsTerminalSession(status string) bool {
	return status == SessionEnded || status == SessionFailed
}

func IsValidSessionStatus(status string) bool {
	return status == SessionStarted || IsTerminalSession(status)
}

// 充电桩状态（OCPP ChargePointStatus）
var StationStatuses = []string{
	"Available", "Preparing", "Charging", "SuspendedEVSE", "SuspendedEV",
	"Finishing", "Reserved", "Unavailable", "Faulted",
}

func IsValidStationStatus(status string) bool {
	for _, s := range StationStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// 支付方式
const (
	PaymentCash         = "cash"
	PaymentPreAuthorize = "pre-authorize"
)

func IsValidPaymentMethod(m string) bool {
	return m == PaymentCash || m == PaymentPreAuthorize
}

// 支付交易状态
const (
	TxDraft      = "draft"
	TxPending    = "pending"
	TxAuthorized = "authorized"
	TxDone       = "done"
	TxCancel     = "cancel"
	TxError      = "error"
)

func IsValidTransactionState(s string) bool {
	switch s {
	case TxDraft, TxPending, TxAuthorized, TxDone, TxCancel, TxError:
		return true
	}
	return false
}

// 支付渠道
const (
	ProviderManual  = "manual"
	ProviderGateway = "gateway"
)

// 扣款状态
const (
	CaptureNone    = "none"
	CapturePending = "pending"
	CaptureDone    = "captured"
	CaptureFailed  = "failed"
	CaptureSkipped = "not_required"
)

// 推送记录状态
const (
	PushPending = "pending"
	PushSent    = "sent"
	PushFailed  = "failed"
	PushError   = "error"
)

// 日志方向
const (
	DirectionC2S = "C2S"
	DirectionS2C = "S2C"
)
