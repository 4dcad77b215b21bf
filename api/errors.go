package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"pulsantiera/auction"
)

// abortWithDomainError 把領域錯誤對應成HTTP回應。
// 驗證類錯誤回4xx並附上可顯示的訊息；外部依賴失敗回502並標記為暫時性；
// 其餘視為內部錯誤。
func abortWithDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auction.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "auction not found"})
	case errors.Is(err, auction.ErrSessionExists):
		c.JSON(http.StatusConflict, gin.H{"message": "auction already exists"})
	case errors.Is(err, auction.ErrNoLotActive),
		errors.Is(err, auction.ErrBidTooLow),
		errors.Is(err, auction.ErrAlreadyHighestBidder),
		errors.Is(err, auction.ErrRoleQuotaExceeded),
		errors.Is(err, auction.ErrLotNameRequired),
		errors.Is(err, auction.ErrBuyerUnresolved),
		errors.Is(err, auction.ErrLotNotFound),
		errors.Is(err, auction.ErrConfigurationNotReady):
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
	case errors.Is(err, auction.ErrAuctionLocked),
		errors.Is(err, auction.ErrTransientlyBlocked),
		errors.Is(err, auction.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"message": err.Error()})
	case errors.Is(err, auction.ErrExternalAssignmentFailed):
		c.JSON(http.StatusBadGateway, gin.H{"message": err.Error(), "transient": true})
	default:
		slog.Error("Unhandled error", slog.String("path", c.FullPath()), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
	}
	c.Abort()
}
