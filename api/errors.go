package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	wrapErrors "github.com/linlinbupt123-crypto/energy_share_service/errors"
	"github.com/linlinbupt123-crypto/energy_share_service/request"
)

var statusByCode = map[wrapErrors.Code]int{
	wrapErrors.CodeValidation:          http.StatusBadRequest,
	wrapErrors.CodeNotFound:            http.StatusNotFound,
	wrapErrors.CodeInsufficientShares:  http.StatusUnprocessableEntity,
	wrapErrors.CodeInsufficientBalance: http.StatusUnprocessableEntity,
	wrapErrors.CodeUnauthorized:        http.StatusUnauthorized,
	wrapErrors.CodeInvalidCredential:   http.StatusUnauthorized,
	wrapErrors.CodeWalletExists:        http.StatusConflict,
	wrapErrors.CodeIllegalTransition:   http.StatusConflict,
	wrapErrors.CodeLedgerSubmission:    http.StatusBadGateway,
	wrapErrors.CodeChainRPC:            http.StatusBadGateway,
	wrapErrors.CodeGasEstimate:         http.StatusBadGateway,
	wrapErrors.PendingNonceAt:          http.StatusBadGateway,
	wrapErrors.DailChain:               http.StatusBadGateway,
	wrapErrors.GetchainIDErr:           http.StatusBadGateway,
	wrapErrors.SendTxErr:               http.StatusBadGateway,
}

func statusOf(code wrapErrors.Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// writeError renders err with the HTTP status of its code. Errors without
// a code are reported as internal and their text is not exposed.
func writeError(c *gin.Context, err error) {
	code := wrapErrors.CodeOf(err)
	status := statusOf(code)
	msg := wrapErrors.Message(err)
	if code == "" || status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal error"
		if code == "" {
			code = "INTERNAL_ERROR"
		}
	}
	c.AbortWithStatusJSON(status, request.ErrorResp{
		Code:      string(code),
		Error:     msg,
		Retryable: wrapErrors.Retryable(err),
	})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, request.ErrorResp{
		Code:  string(wrapErrors.CodeValidation),
		Error: err.Error(),
	})
}
