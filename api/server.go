package api

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"pulsantiera/adapters/fantacalcio"
	"pulsantiera/adapters/oidc"
	redisAdapter "pulsantiera/adapters/redis"
	"pulsantiera/adapters/sse"
	"pulsantiera/auction"
	"pulsantiera/catalog"
	"pulsantiera/models"
)

// SaleMessage 是寫入成交stream的訊息，
// 由成交持久化worker轉存成資料庫的成交紀錄
type SaleMessage struct {
	AuctionID string       `msgpack:"auctionId"`
	Role      string       `msgpack:"role,omitempty"`
	Sale      auction.Sale `msgpack:"sale"`
}

// engineEntry 綁定單場拍賣會的規則引擎和它的名冊配額快照
type engineEntry struct {
	engine *auction.Engine
	roster *fantacalcio.TeamRosterCounter
}

type ServerImpl struct {
	store         auction.Store
	controller    *auction.Controller
	catalogue     *catalog.Catalog
	rosterClient  fantacalcio.IRosterClient
	hub           sse.IHub
	htmlChecker   *bluemonday.Policy
	redisClient   *redis.Client
	db            *gorm.DB
	oidcProvider  *oidc.Provider
	ssoProvider   *oidc.ExtendedProvider
	producer      redisAdapter.IProducer[SaleMessage]
	groupConsumer redisAdapter.IGroupConsumer[SaleMessage]

	mu        sync.Mutex
	engines   map[string]*engineEntry
	cooldowns map[string]*auction.Cooldown

	wg         sync.WaitGroup
	cancelFunc context.CancelFunc

	config ServerConfig
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	// 初始化OIDC提供者
	ssoProvider, err := oidc.NewExtendedProvider(config.OIDC.IssuerURL, config.OIDC.ClientID, config.OIDC.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to initial OIDC provider, err=%w", op, err)
	}

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s", config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	// 初始化拍賣會文件儲存層
	store, err := redisAdapter.NewDocStore(
		redisClient,
		redisAdapter.WithDocStoreKeyPrefix(config.Redis.KeyPrefix+"asta:"),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create doc store, err=%w", op, err)
	}

	// 初始化名冊數據API客戶端和球員目錄
	rosterClient, err := fantacalcio.NewClient(config.Fantacalcio.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create fantacalcio client, err=%w", op, err)
	}
	catalogue := catalog.New()

	// 初始化進度控制器
	controller, err := auction.NewController(
		store,
		rosterClient,
		catalogue,
		auction.WithControllerAutoAdvance(config.Policy.AutoAdvance),
		auction.WithControllerAdvanceDelay(config.Policy.AdvanceDelay),
		auction.WithControllerRandomizeNext(config.Policy.RandomizeNext),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create lot controller, err=%w", op, err)
	}

	// 初始化SSE fan-out
	hub := sse.NewHub(store, slog.Default())

	// 初始化成交stream的producer和group consumer
	producer, err := redisAdapter.NewProducer[SaleMessage](redisClient, config.Redis.StreamKeys.Sales)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create producer, err=%w", op, err)
	}
	groupConsumer, err := redisAdapter.NewGroupConsumer[SaleMessage](
		redisClient,
		config.Redis.StreamKeys.Sales,
		config.Redis.ConsumerGroup,
		config.ID,
		redisAdapter.WithGroupConsumerLogger[SaleMessage](slog.Default()),
		redisAdapter.WithGroupConsumerStrictOrdering[SaleMessage](true),
		redisAdapter.WithGroupConsumerMutex[SaleMessage](
			redisAdapter.NewAutoRenewMutex(redisClient, config.Redis.KeyPrefix+"sales:consumer:lock"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create group consumer, err=%w", op, err)
	}

	return &ServerImpl{
		store:         store,
		controller:    controller,
		catalogue:     catalogue,
		rosterClient:  rosterClient,
		hub:           hub,
		htmlChecker:   bluemonday.StrictPolicy(),
		redisClient:   redisClient,
		db:            db,
		oidcProvider:  ssoProvider.Provider,
		ssoProvider:   ssoProvider,
		producer:      producer,
		groupConsumer: groupConsumer,
		engines:       make(map[string]*engineEntry),
		cooldowns:     make(map[string]*auction.Cooldown),
		config:        config,
	}, nil
}

func (impl *ServerImpl) Start() error {
	const op = "ServerImpl.Start"
	// 載入球員目錄
	if err := impl.loadCatalogue(context.Background()); err != nil {
		// 目錄載入失敗時服務仍可運作，只是依賴目錄的功能(下一位、搜尋、配額)降級
		slog.Warn("Fail to load player catalogue", slog.String("op", op), slog.Any("error", err))
	}
	// 啟動producer
	impl.producer.Start()
	// 啟動group consumer
	if err := impl.groupConsumer.Start(); err != nil {
		return fmt.Errorf("[%s] Fail to start group consumer, err=%w", op, err)
	}
	// 啟動一個worker用於將成交紀錄存回資料庫
	ctx, cancel := context.WithCancel(context.Background())
	impl.cancelFunc = cancel
	slog.Info("Start sale synchronization worker")
	impl.wg.Add(1)
	go impl.runSaleSynchronization(ctx)
	return nil
}

func (impl *ServerImpl) Close() {
	// 關閉group consumer
	impl.groupConsumer.Close()
	// 關閉worker
	impl.cancelFunc()
	impl.wg.Wait()
	// 關閉producer
	impl.producer.Close()
	// 關閉SSE fan-out
	impl.hub.Close()
}

// loadCatalogue 以設定的聯盟座標向外部API抓取球員清單，
// 並在有提供CSV時合併補充資料
func (impl *ServerImpl) loadCatalogue(ctx context.Context) error {
	const op = "ServerImpl.loadCatalogue"
	cfg := auction.GroupConfig{
		GroupID:  impl.config.Fantacalcio.GroupID,
		LeagueID: impl.config.Fantacalcio.LeagueID,
		BasketID: impl.config.Fantacalcio.BasketID,
		Year:     impl.config.Fantacalcio.Year,
	}
	players, err := impl.rosterClient.GetAllPlayers(ctx, cfg)
	if err != nil {
		return fmt.Errorf("[%s] Fail to fetch players, err=%w", op, err)
	}
	impl.catalogue.Replace(players)
	slog.Info("Player catalogue loaded", slog.Int("players", len(players)))

	if path := impl.config.Fantacalcio.ExtraCSVPath; path != "" {
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("[%s] Fail to open extra CSV, err=%w", op, err)
		}
		defer file.Close()
		extra, err := catalog.LoadExtraCSV(file)
		if err != nil {
			return fmt.Errorf("[%s] Fail to parse extra CSV, err=%w", op, err)
		}
		impl.catalogue.MergeExtra(extra)
		slog.Info("Player extra data merged", slog.Int("rows", len(extra)))
	}
	return nil
}

// runSaleSynchronization 消費成交stream並寫入資料庫的成交總帳
func (impl *ServerImpl) runSaleSynchronization(ctx context.Context) {
	logger := slog.Default().With(slog.String("caller", "SaleSynchronize"))
	defer impl.wg.Done()
	defer slog.Info("Sale synchronization worker stopped")
	ch := impl.groupConsumer.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			logger.Debug("Receive message")
			handleErr := impl.persistSale(msg.Data)
			if handleErr != nil {
				logger.Error("Fail to synchronize sale", slog.Any("error", handleErr))
				if err := msg.Fail(ctx, handleErr); err != nil {
					logger.Error("Fail to fail message", slog.Any("error", err))
				}
				continue
			}
			if err := msg.Done(ctx); err != nil {
				logger.Error("Sync success but fail to done message", slog.Any("error", err))
				if err := msg.Fail(ctx, err); err != nil {
					logger.Error("Sync success but fail to fail message", slog.Any("error", err))
				}
				continue
			}
			logger.Debug("Synchronize success")
		}
	}
}

func (impl *ServerImpl) persistSale(msg SaleMessage) error {
	// 成交紀錄要掛在拍賣會的登記資料底下
	registry := models.AuctionRecord{RoomID: msg.AuctionID}
	if result := impl.db.Where(&registry).First(&registry); result.Error != nil {
		return fmt.Errorf("fail to find auction registry, room=%s, err=%w", msg.AuctionID, result.Error)
	}
	record := models.SaleRecord{
		AuctionRecordID: registry.ID,
		PlayerName:      msg.Sale.Lot,
		PlayerRole:      msg.Role,
		Price:           msg.Sale.Price,
		Buyer:           msg.Sale.Buyer,
		BuyerEmail:      msg.Sale.BuyerEmail,
		SoldAt:          msg.Sale.SoldAt,
	}
	if result := impl.db.Create(&record); result.Error != nil {
		return fmt.Errorf("fail to create sale record, err=%w", result.Error)
	}
	return nil
}

// engineFor 返回指定拍賣會的規則引擎。
// 引擎綁定拍賣會的聯盟座標(名冊配額快照需要它)，所以按場次快取。
func (impl *ServerImpl) engineFor(ctx context.Context, auctionID string) (*auction.Engine, error) {
	const op = "ServerImpl.engineFor"
	impl.mu.Lock()
	if entry, ok := impl.engines[auctionID]; ok {
		impl.mu.Unlock()
		return entry.engine, nil
	}
	impl.mu.Unlock()

	session, err := impl.store.Read(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	var roster *fantacalcio.TeamRosterCounter
	var counter auction.RosterCounter
	if session.GroupConfig != nil {
		roster, err = fantacalcio.NewTeamRosterCounter(
			impl.rosterClient,
			*session.GroupConfig,
			fantacalcio.WithRosterTTL(impl.config.Policy.RosterTTL),
		)
		if err != nil {
			return nil, fmt.Errorf("[%s] Fail to create roster counter, err=%w", op, err)
		}
		counter = roster
	}
	engine, err := auction.NewEngine(impl.store, counter, impl.catalogue)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create bid engine, err=%w", op, err)
	}

	impl.mu.Lock()
	defer impl.mu.Unlock()
	if entry, ok := impl.engines[auctionID]; ok {
		return entry.engine, nil
	}
	impl.engines[auctionID] = &engineEntry{engine: engine, roster: roster}
	return engine, nil
}

// invalidateRoster 在成交後讓名冊配額快照失效，下次檢查重新抓取
func (impl *ServerImpl) invalidateRoster(auctionID string) {
	impl.mu.Lock()
	defer impl.mu.Unlock()
	if entry, ok := impl.engines[auctionID]; ok && entry.roster != nil {
		entry.roster.Invalidate()
	}
}

func (impl *ServerImpl) cooldownFor(auctionID string) *auction.Cooldown {
	impl.mu.Lock()
	defer impl.mu.Unlock()
	cd, ok := impl.cooldowns[auctionID]
	if !ok {
		cd = auction.NewCooldown(auction.WithCooldownWindow(impl.config.Policy.CooldownWindow))
		impl.cooldowns[auctionID] = cd
	}
	return cd
}

// updateSession 以領域層共用的條件提交重試更新拍賣會文件
func (impl *ServerImpl) updateSession(ctx context.Context, auctionID string, build func(*auction.Session) ([]auction.PatchOp, error)) (*auction.Session, error) {
	const maxRetries = 3
	return auction.MutateSession(ctx, impl.store, auctionID, maxRetries, build)
}

// publishSale 把剛完成的成交送上stream，失敗只記錄日誌，
// 成交本身已經在文件和外部名冊上生效
func (impl *ServerImpl) publishSale(auctionID string, sale *auction.Sale) {
	msg := SaleMessage{AuctionID: auctionID, Sale: *sale}
	if role, ok := impl.catalogue.RoleOf(sale.Lot); ok {
		msg.Role = role.String()
	}
	if err := impl.producer.Publish(msg); err != nil {
		slog.Error("Fail to publish sale message", slog.String("auctionID", auctionID), slog.Any("error", err))
	}
}

// bidLockFor 返回單場拍賣會出價臨界區使用的分散式鎖
func (impl *ServerImpl) bidLockFor(auctionID string) redisAdapter.IAutoRenewMutex {
	lockKey := fmt.Sprintf("%sasta:%s:bid-lock", impl.config.Redis.KeyPrefix, auctionID)
	return redisAdapter.NewAutoRenewMutex(impl.redisClient, lockKey)
}
