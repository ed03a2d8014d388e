package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/linlinbupt123-crypto/energy_share_service/entity"
	"github.com/linlinbupt123-crypto/energy_share_service/request"
	"github.com/linlinbupt123-crypto/energy_share_service/service"
	"github.com/linlinbupt123-crypto/energy_share_service/utils"
)

type PurchaseHandler struct {
	purchaseService *service.PurchaseService
}

func NewPurchaseHandler(ps *service.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{purchaseService: ps}
}

func estimateResp(e *service.Estimate) request.EstimateResp {
	return request.EstimateResp{
		ProjectID:         e.ProjectID,
		ProjectName:       e.ProjectName,
		Shares:            e.Shares,
		AvailableShares:   e.AvailableShares,
		PricePerShare:     utils.WeiToETH(e.PricePerShare),
		TotalCost:         utils.WeiToETH(e.TotalCost),
		TotalCostWei:      e.TotalCost.String(),
		PlatformFee:       utils.WeiToETH(e.PlatformFee),
		PlatformFeeWei:    e.PlatformFee.String(),
		FeeReserve:        utils.WeiToETH(e.FeeReserve),
		RequiredBalance:   utils.WeiToETH(e.RequiredBalance),
		UserBalance:       utils.WeiToETH(e.UserBalance),
		SufficientBalance: e.SufficientBalance,
	}
}

func (h *PurchaseHandler) Estimate(c *gin.Context) {
	userID := c.Param("userID")
	var req request.EstimatePurchaseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	est, err := h.purchaseService.EstimatePurchase(c.Request.Context(), userID, req.ProjectID, req.Shares)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, estimateResp(est))
}

// Submit returns once the ledger accepted the transaction; clients poll
// the intent for the outcome.
func (h *PurchaseHandler) Submit(c *gin.Context) {
	userID := c.Param("userID")
	var req request.SubmitPurchaseReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.purchaseService.SubmitPurchase(c.Request.Context(), service.SubmitRequest{
		UserID:    userID,
		ProjectID: req.ProjectID,
		Shares:    req.Shares,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, res)
}

func (h *PurchaseHandler) GetIntent(c *gin.Context) {
	it, err := h.purchaseService.GetIntent(c.Request.Context(), c.Param("userID"), c.Param("intentID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

func (h *PurchaseHandler) ListIntents(c *gin.Context) {
	var req request.ListIntentsReq
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}

	list, total, err := h.purchaseService.ListIntents(c.Request.Context(), c.Param("userID"), req.Limit, req.Skip)
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []*entity.PurchaseIntent{}
	}

	c.JSON(http.StatusOK, gin.H{
		"intents": list,
		"total":   total,
	})
}
