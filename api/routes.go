package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// 身分token的cookie名稱
	COOKIE_KEY_ACCESS_TOKEN = "access_token"
	// gin context中存放已驗證claims的key
	CONTEXT_KEY_CLAIMS = "pulsantiera-claims"
)

// RegisterRoutes 掛載所有路由
func (impl *ServerImpl) RegisterRoutes(router *gin.Engine) {
	router.Use(impl.SessionMiddleware(), impl.IdentityMiddleware())

	asta := router.Group("/asta")
	{
		asta.POST("", impl.PostAuction)
		asta.GET("/:id", impl.GetAuction)
		asta.GET("/:id/events", impl.GetAuctionEvents)
		asta.GET("/:id/teams", impl.GetAuctionTeams)
		asta.POST("/:id/partecipanti", impl.PostParticipant)
		asta.DELETE("/:id/partecipanti/:name", impl.DeleteParticipant)
		asta.POST("/:id/bids", impl.PostBid)

		// 拍賣官限定操作
		banditore := asta.Group("", impl.RequireAuctioneer())
		{
			banditore.POST("/:id/reset", impl.PostReset)
			banditore.POST("/:id/lock", impl.PostLock)
			banditore.POST("/:id/lot", impl.PostLot)
			banditore.POST("/:id/lot/next", impl.PostLotNext)
			banditore.POST("/:id/lot/taken", impl.PostLotTaken)
			banditore.POST("/:id/lot/sold", impl.PostLotSold)
			banditore.POST("/:id/lot/previous", impl.PostLotPrevious)
		}
	}

	router.GET("/giocatori", impl.GetPlayers)

	auth := router.Group("/auth")
	{
		auth.GET("/login", impl.GetAuthLogin)
		auth.GET("/callback", impl.GetAuthCallback)
		auth.GET("/logout", impl.GetAuthLogout)
	}
}

// IdentityMiddleware 嘗試從cookie解析身分token，
// 失敗時視為匿名請求，不中斷處理
func (impl *ServerImpl) IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := c.Cookie(COOKIE_KEY_ACCESS_TOKEN)
		if err != nil || tokenString == "" {
			c.Next()
			return
		}
		claims, err := ParseAndValidateJWT(tokenString, impl.config.Auth.PrivateKey)
		if err != nil {
			slog.Debug("Ignore invalid access token", slog.Any("error", err))
			c.Next()
			return
		}
		c.Set(CONTEXT_KEY_CLAIMS, claims)
		c.Next()
	}
}

// RequireAuctioneer 限制只有該場拍賣會的拍賣官token可以通過
func (impl *ServerImpl) RequireAuctioneer() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := impl.claimsFrom(c)
		if claims == nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		if claims.AuctioneerFor != c.Param("id") {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}

func (impl *ServerImpl) claimsFrom(c *gin.Context) *JWT {
	value, ok := c.Get(CONTEXT_KEY_CLAIMS)
	if !ok {
		return nil
	}
	claims, ok := value.(*JWT)
	if !ok {
		return nil
	}
	return claims
}
