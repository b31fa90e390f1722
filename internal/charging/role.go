package charging

// Role 请求人相对站点的角色，每次操作时重新计算，不落库
type Role string

const (
	RoleOwner       Role = "owner"
	RoleMonthlyUser Role = "monthly_user"
	RoleGuest       Role = "guest"
)

// ClassifyRole 站主 > 月结伙伴 > 访客
func ClassifyRole(requesterID, ownerID int64, partnerIDs []int64) Role {
	if requesterID == ownerID {
		return RoleOwner
	}
	for _, id := range partnerIDs {
		if id == requesterID {
			return RoleMonthlyUser
		}
	}
	return RoleGuest
}

// NeedsApproval 只有访客需要站主审批与预付
func (r Role) NeedsApproval() bool { return r == RoleGuest }
