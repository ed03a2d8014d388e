package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/linlinbupt123-crypto/energy_share_service/request"
	"github.com/linlinbupt123-crypto/energy_share_service/service"
)

type WalletHandler struct {
	walletService *service.WalletService
}

func NewWalletHandler(ws *service.WalletService) *WalletHandler {
	return &WalletHandler{walletService: ws}
}

// CreateWallet, create the user's wallet and return its address
func (h *WalletHandler) CreateWallet(c *gin.Context) {
	userID := c.Param("userID")
	var req request.CreateWalletReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	addr, err := h.walletService.CreateWallet(c.Request.Context(), userID, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"address": addr,
	})
}

// VerifyPassword, check the wallet password without using the key
func (h *WalletHandler) VerifyPassword(c *gin.Context) {
	userID := c.Param("userID")
	var req request.VerifyWalletReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ok, err := h.walletService.VerifyWalletPassword(c.Request.Context(), userID, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid": ok,
	})
}

// GetWallet, only the address is exposed
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID := c.Param("userID")

	w, err := h.walletService.GetWallet(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	if w == nil {
		c.JSON(http.StatusOK, request.WalletInfoResp{HasWallet: false})
		return
	}

	c.JSON(http.StatusOK, request.WalletInfoResp{Address: w.Address, HasWallet: true})
}
