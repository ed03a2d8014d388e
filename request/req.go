package request

// --- 请求结构 ---
type CreateWalletReq struct {
	Password string `json:"password" binding:"required"`
}

type VerifyWalletReq struct {
	Password string `json:"password" binding:"required"`
}

type EstimatePurchaseReq struct {
	ProjectID int64 `json:"project_id" binding:"required,gt=0"`
	Shares    int64 `json:"shares" binding:"required,gt=0"`
}

type SubmitPurchaseReq struct {
	ProjectID int64  `json:"project_id" binding:"required,gt=0"`
	Shares    int64  `json:"shares" binding:"required,gt=0"`
	Password  string `json:"password" binding:"required"`
}

type ListIntentsReq struct {
	Limit int64 `form:"limit"`
	Skip  int64 `form:"skip"`
}

type ListProjectsReq struct {
	Status   *int   `form:"status"`
	Type     string `form:"type"`
	Location string `form:"location"`
}

type UpdateProjectMetadataReq struct {
	Description            *string  `json:"description"`
	Images                 []string `json:"images"`
	DetailedSpecifications *string  `json:"detailed_specifications"`
}

// --- 响应结构 ---

// EstimateResp renders amounts both in minor units and as decimal strings.
type EstimateResp struct {
	ProjectID         int64  `json:"project_id"`
	ProjectName       string `json:"project_name"`
	Shares            int64  `json:"shares"`
	AvailableShares   int64  `json:"available_shares"`
	PricePerShare     string `json:"price_per_share"`
	TotalCost         string `json:"total_cost"`
	TotalCostWei      string `json:"total_cost_wei"`
	PlatformFee       string `json:"platform_fee"`
	PlatformFeeWei    string `json:"platform_fee_wei"`
	FeeReserve        string `json:"fee_reserve"`
	RequiredBalance   string `json:"required_balance"`
	UserBalance       string `json:"user_balance"`
	SufficientBalance bool   `json:"sufficient_balance"`
}

type WalletInfoResp struct {
	Address   string `json:"address,omitempty"`
	HasWallet bool   `json:"has_wallet"`
}

type ErrorResp struct {
	Code      string `json:"code"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}
