package charging

import "math"

// CostCent 结算金额（分）
// 优先使用 CSMS 上报费用；缺失时按电量×电价估算；capCent>0 时封顶
func CostCent(reportedCent *int64, energyKWh *float64, pricePerKWhCent, capCent int64) int64 {
	var cost int64
	switch {
	case reportedCent != nil:
		cost = *reportedCent
	case energyKWh != nil && pricePerKWhCent > 0:
		cost = int64(math.Round(*energyKWh * float64(pricePerKWhCent)))
	}
	if cost < 0 {
		cost = 0
	}
	if capCent > 0 && cost > capCent {
		cost = capCent
	}
	return cost
}

// EstimateEnergyKWh 给定金额可充电量（kWh），用于展示访客上限对应的电量
func EstimateEnergyKWh(amountCent, pricePerKWhCent int64) float64 {
	if amountCent <= 0 || pricePerKWhCent <= 0 {
		return 0
	}
	return math.Round(float64(amountCent)/float64(pricePerKWhCent)*100) / 100
}
