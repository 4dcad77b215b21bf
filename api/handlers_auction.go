package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"pulsantiera/adapters/session"
	"pulsantiera/auction"
	"pulsantiera/models"
)

type createAuctionRequest struct {
	Name     string `json:"name" binding:"required"`
	GroupID  string `json:"groupId"`
	LeagueID string `json:"leagueId"`
	BasketID string `json:"basketId"`
	Year     string `json:"year"`
}

// PostAuction 建立新的拍賣會
// (POST /asta)
func (impl *ServerImpl) PostAuction(c *gin.Context) {
	const op = "PostAuction"
	var request createAuctionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	name := strings.TrimSpace(impl.htmlChecker.Sanitize(request.Name))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "auction name is required"})
		return
	}

	// 有提供聯盟座標時向外部API驗證群組存在
	var groupConfig *auction.GroupConfig
	if request.GroupID != "" {
		group, err := impl.rosterClient.GetGroup(c.Request.Context(), request.GroupID)
		if err != nil {
			abortWithDomainError(c, fmt.Errorf("%w: %v", auction.ErrExternalAssignmentFailed, err))
			return
		}
		if group == nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "group not found"})
			return
		}
		groupConfig = &auction.GroupConfig{
			GroupID:   group.ID,
			GroupName: group.Name,
			LeagueID:  request.LeagueID,
			BasketID:  request.BasketID,
			Year:      request.Year,
		}
	}

	auctionID := uuid.NewString()
	doc := &auction.Session{
		ID:           auctionID,
		Name:         name,
		CreatedAt:    time.Now(),
		Participants: []auction.Participant{},
		TakenLots:    []string{},
		SalesHistory: []auction.Sale{},
		GroupConfig:  groupConfig,
	}
	if err := impl.store.Create(c.Request.Context(), doc); err != nil {
		abortWithDomainError(c, err)
		return
	}

	// 登記資料入庫，成交總帳靠它歸屬
	registry := models.AuctionRecord{
		RoomID: auctionID,
		Name:   name,
	}
	if groupConfig != nil {
		registry.Group = groupConfig.GroupID
		registry.League = groupConfig.LeagueID
		registry.Basket = groupConfig.BasketID
		registry.Year = groupConfig.Year
	}
	if result := impl.db.Create(&registry); result.Error != nil {
		abortWithDomainError(c, fmt.Errorf("[%s] Fail to create auction registry, err=%w", op, result.Error))
		return
	}

	// 建立者取得這場拍賣會的拍賣官token
	token, err := impl.mintAuctioneerToken(c, auctionID)
	if err != nil {
		abortWithDomainError(c, fmt.Errorf("[%s] Fail to mint auctioneer token, err=%w", op, err))
		return
	}
	c.SetCookie(COOKIE_KEY_ACCESS_TOKEN, token, int(impl.config.Auth.ExpireDuration.Seconds()), "/", "", true, true)
	c.Header("Location", "/asta/"+auctionID)
	c.JSON(http.StatusCreated, gin.H{"id": auctionID})
}

func (impl *ServerImpl) mintAuctioneerToken(c *gin.Context, auctionID string) (string, error) {
	username := auction.AuctioneerLabel
	var email string
	if claims := impl.claimsFrom(c); claims != nil {
		username = claims.Username
		email = claims.Email
	}
	token := jwt.NewWithClaims(&jwt.SigningMethodEd25519{}, JWT{
		Username:      username,
		Email:         email,
		AuctioneerFor: auctionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(impl.config.Auth.ExpireDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    impl.config.Auth.Issuer,
			Subject:   username,
			ID:        uuid.NewString(),
			Audience:  []string{impl.config.Auth.Audience},
		},
	})
	return token.SignedString(impl.config.Auth.PrivateKey)
}

// GetAuction 取得拍賣會的當前快照
// (GET /asta/:id)
func (impl *ServerImpl) GetAuction(c *gin.Context) {
	doc, err := impl.store.Read(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// GetAuctionEvents 以SSE推送拍賣會的快照串流
// (GET /asta/:id/events)
func (impl *ServerImpl) GetAuctionEvents(c *gin.Context) {
	auctionID := c.Param("id")
	ch, err := impl.hub.Subscribe(auctionID)
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	defer impl.hub.Unsubscribe(auctionID, ch)

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Transfer-Encoding", "chunked")

	cooldown := impl.cooldownFor(auctionID)
	for {
		select {
		case <-w.CloseNotify():
			return
		case snapshot, ok := <-ch:
			if !ok {
				return
			}
			// 冷卻追蹤器以觀察到的快照為準
			if snapshot.CurrentBidder != nil {
				cooldown.Observe(*snapshot.CurrentBidder, snapshot.CurrentBid)
			} else {
				cooldown.Observe("", 0)
			}
			c.SSEvent("snapshot", snapshot)
			w.Flush()
		// 30秒沒有事件就發送一個空行，確保瀏覽器和Cloudflare不會斷開連線
		case <-time.After(30 * time.Second):
			w.WriteString("\n\n")
			w.Flush()
		}
	}
}

// GetAuctionTeams 轉發外部名冊系統目前的隊伍名單
// (GET /asta/:id/teams)
func (impl *ServerImpl) GetAuctionTeams(c *gin.Context) {
	doc, err := impl.store.Read(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	if doc.GroupConfig == nil {
		abortWithDomainError(c, auction.ErrConfigurationNotReady)
		return
	}
	teams, err := impl.rosterClient.GetTeams(c.Request.Context(), *doc.GroupConfig)
	if err != nil {
		abortWithDomainError(c, fmt.Errorf("%w: %v", auction.ErrExternalAssignmentFailed, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"teams": teams})
}

type participantRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
}

// PostParticipant 以顯示名稱加入拍賣會(冪等)
// (POST /asta/:id/partecipanti)
func (impl *ServerImpl) PostParticipant(c *gin.Context) {
	auctionID := c.Param("id")
	var request participantRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	name := strings.TrimSpace(impl.htmlChecker.Sanitize(request.Name))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "participant name is required"})
		return
	}
	email := strings.TrimSpace(request.Email)
	if email == "" {
		if claims := impl.claimsFrom(c); claims != nil {
			email = claims.Email
		}
	}

	doc, err := impl.updateSession(c.Request.Context(), auctionID, func(s *auction.Session) ([]auction.PatchOp, error) {
		return []auction.PatchOp{auction.AddParticipant(auction.Participant{
			Name:     name,
			Email:    email,
			JoinedAt: time.Now(),
		})}, nil
	})
	if err != nil {
		abortWithDomainError(c, err)
		return
	}

	// 在cookie session記住身份，回訪時前端可以直接帶出
	if s, err := session.GetSession(c); err == nil {
		session.RememberParticipant(s, auctionID, session.Identity{Name: name, Email: email})
		if err := s.Save(); err != nil {
			slog.Warn("Fail to save cookie session", slog.Any("error", err))
		}
	} else {
		slog.Debug("No cookie session to remember participant", slog.Any("error", err))
	}
	c.JSON(http.StatusOK, doc)
}

// DeleteParticipant 離開拍賣會
// (DELETE /asta/:id/partecipanti/:name)
func (impl *ServerImpl) DeleteParticipant(c *gin.Context) {
	auctionID := c.Param("id")
	name := c.Param("name")

	doc, err := impl.updateSession(c.Request.Context(), auctionID, func(s *auction.Session) ([]auction.PatchOp, error) {
		if _, ok := s.FindParticipant(name); !ok {
			return nil, nil
		}
		return []auction.PatchOp{auction.RemoveParticipant(name)}, nil
	})
	if err != nil {
		abortWithDomainError(c, err)
		return
	}

	if s, err := session.GetSession(c); err == nil {
		session.ForgetParticipant(s, auctionID)
		if err := s.Save(); err != nil {
			slog.Warn("Fail to save cookie session", slog.Any("error", err))
		}
	}
	c.JSON(http.StatusOK, doc)
}

type bidRequest struct {
	// 固定加價
	Delta *uint32 `json:"delta"`
	// 指定金額
	Amount *uint32 `json:"amount"`
	// 拍賣官代隊伍出價時的隊名
	Team       string `json:"team"`
	OwnerEmail string `json:"ownerEmail"`
	// 匿名出價時的顯示名稱(有身分token時以token為準)
	Bidder string `json:"bidder"`
}

// PostBid 對當前球員出價，body區分加價、指定金額與代出價三種形式
// (POST /asta/:id/bids)
func (impl *ServerImpl) PostBid(c *gin.Context) {
	const op = "PostBid"
	auctionID := c.Param("id")
	var request bidRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	bidder := impl.resolveBidder(c, auctionID, request)
	if request.Team == "" && bidder.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "bidder name is required"})
		return
	}

	// 觀察到他人出價後的諮詢性冷卻
	actor := bidder.Name
	if request.Team != "" {
		actor = fmt.Sprintf("%s (%s)", request.Team, auction.AuctioneerLabel)
	}
	if impl.cooldownFor(auctionID).Blocked(actor) {
		abortWithDomainError(c, auction.ErrTransientlyBlocked)
		return
	}

	engine, err := impl.engineFor(c.Request.Context(), auctionID)
	if err != nil {
		abortWithDomainError(c, err)
		return
	}

	// 取得這場拍賣會的出價鎖，把出價臨界區序列化
	dMutex := impl.bidLockFor(auctionID)
	lockCtx, err := dMutex.Lock(c.Request.Context())
	if err != nil {
		abortWithDomainError(c, fmt.Errorf("[%s] Fail to acquire bid lock, err=%w", op, err))
		return
	}
	defer func() {
		if _, err := dMutex.Unlock(); err != nil {
			slog.Warn("Fail to release bid lock", slog.String("op", op), slog.Any("error", err))
		}
	}()

	var doc *auction.Session
	switch {
	case request.Team != "":
		if claims := impl.claimsFrom(c); claims == nil || claims.AuctioneerFor != auctionID {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		var amount uint32
		if request.Amount != nil {
			amount = *request.Amount
		}
		doc, err = engine.PlaceBidOnBehalf(lockCtx, auctionID, request.Team, request.OwnerEmail, amount)
	case request.Amount != nil:
		doc, err = engine.PlaceFixedBid(lockCtx, auctionID, bidder, *request.Amount)
	case request.Delta != nil:
		doc, err = engine.PlaceIncrementBid(lockCtx, auctionID, bidder, *request.Delta)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"message": "either delta or amount is required"})
		return
	}
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// resolveBidder 依序以身分token、request body、cookie session解析出價者
func (impl *ServerImpl) resolveBidder(c *gin.Context, auctionID string, request bidRequest) auction.Bidder {
	if claims := impl.claimsFrom(c); claims != nil && claims.AuctioneerFor == "" {
		return auction.Bidder{Name: claims.Username, Email: claims.Email}
	}
	if request.Bidder != "" {
		return auction.Bidder{Name: strings.TrimSpace(request.Bidder)}
	}
	if s, err := session.GetSession(c); err == nil {
		if identity, ok := session.RecallParticipant(s, auctionID); ok {
			return auction.Bidder{Name: identity.Name, Email: identity.Email}
		}
	}
	return auction.Bidder{}
}

// PostReset 將出價歸零(冪等)
// (POST /asta/:id/reset)
func (impl *ServerImpl) PostReset(c *gin.Context) {
	auctionID := c.Param("id")
	engine, err := impl.engineFor(c.Request.Context(), auctionID)
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	doc, err := engine.ResetBid(c.Request.Context(), auctionID)
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// PostLock 翻轉鎖定旗標
// (POST /asta/:id/lock)
func (impl *ServerImpl) PostLock(c *gin.Context) {
	auctionID := c.Param("id")
	engine, err := impl.engineFor(c.Request.Context(), auctionID)
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	doc, err := engine.ToggleLock(c.Request.Context(), auctionID)
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

type lotRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// PostLot 手動指定上拍球員
// (POST /asta/:id/lot)
func (impl *ServerImpl) PostLot(c *gin.Context) {
	var request lotRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	doc, err := impl.controller.SetLotManually(c.Request.Context(), c.Param("id"), request.Name)
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// PostLotNext 向外部API要求指定位置的下一名球員並上拍。
// 該位置抽完是預期的終點，以200加exhausted旗標回報而非錯誤。
// (POST /asta/:id/lot/next)
func (impl *ServerImpl) PostLotNext(c *gin.Context) {
	var request lotRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	role, err := auction.ParseRole(request.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid role"})
		return
	}
	doc, err := impl.controller.FetchNextLotByRole(c.Request.Context(), c.Param("id"), role)
	if errors.Is(err, auction.ErrPoolExhausted) {
		c.JSON(http.StatusOK, gin.H{"exhausted": true, "role": role.String()})
		return
	}
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// PostLotTaken 不經出價把球員標記為不可用
// (POST /asta/:id/lot/taken)
func (impl *ServerImpl) PostLotTaken(c *gin.Context) {
	var request lotRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}
	doc, err := impl.controller.MarkLotUnavailable(c.Request.Context(), c.Param("id"), request.Name)
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// PostLotSold 以當前出價把球員結標給最高出價者
// (POST /asta/:id/lot/sold)
func (impl *ServerImpl) PostLotSold(c *gin.Context) {
	auctionID := c.Param("id")
	sale, err := impl.controller.CompleteSale(c.Request.Context(), auctionID)
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	// 名冊已變動，配額快照需要重抓
	impl.invalidateRoster(auctionID)
	impl.publishSale(auctionID, sale)
	c.JSON(http.StatusOK, gin.H{"sale": sale})
}

// PostLotPrevious 把最近結標的球員重新帶回拍賣(單層撤銷)
// (POST /asta/:id/lot/previous)
func (impl *ServerImpl) PostLotPrevious(c *gin.Context) {
	restored, err := impl.controller.GoToPreviousLot(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"restored": restored})
}

// GetPlayers 搜尋球員目錄
// (GET /giocatori?term=&role=&asta=)
func (impl *ServerImpl) GetPlayers(c *gin.Context) {
	term := c.Query("term")
	var role *auction.Role
	if roleName := c.Query("role"); roleName != "" {
		parsed, err := auction.ParseRole(roleName)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid role"})
			return
		}
		role = &parsed
	}
	// 有指定拍賣會時把已售出的球員排到最後
	var taken []string
	if auctionID := c.Query("asta"); auctionID != "" {
		doc, err := impl.store.Read(c.Request.Context(), auctionID)
		if err != nil {
			abortWithDomainError(c, err)
			return
		}
		taken = doc.TakenLots
	}
	results := impl.catalogue.Search(term, role, taken)
	c.JSON(http.StatusOK, gin.H{"count": len(results), "players": results})
}
