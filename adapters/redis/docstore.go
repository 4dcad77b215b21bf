package redis

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"pulsantiera/auction"
)

type docStoreOptions struct {
	logger          *slog.Logger
	keyPrefix       string
	streamMaxLen    int64
	subscribeBuffer int
}

type DocStoreOption func(*docStoreOptions)

// WithDocStoreLogger 設置日誌記錄器
func WithDocStoreLogger(logger *slog.Logger) DocStoreOption {
	return func(o *docStoreOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDocStoreKeyPrefix 設置文件鍵的前綴
func WithDocStoreKeyPrefix(prefix string) DocStoreOption {
	return func(o *docStoreOptions) {
		if prefix != "" {
			o.keyPrefix = prefix
		}
	}
}

// WithDocStoreStreamMaxLen 設置快照stream的近似長度上限
func WithDocStoreStreamMaxLen(maxLen int64) DocStoreOption {
	return func(o *docStoreOptions) {
		if maxLen > 0 {
			o.streamMaxLen = maxLen
		}
	}
}

// WithDocStoreSubscribeBuffer 設置訂閱channel的緩衝大小
func WithDocStoreSubscribeBuffer(size int) DocStoreOption {
	return func(o *docStoreOptions) {
		if size > 0 {
			o.subscribeBuffer = size
		}
	}
}

// DocStore 以Redis實作拍賣會文件的儲存與即時訂閱。
// 文件本體放在hash(doc+ver兩個欄位)，每次提交同時把新快照寫進
// 同名stream，訂閱端靠stream接收增量更新。
// 提交使用Lua腳本比對版本號，版本不符的寫入會被整筆拒絕。
type DocStore struct {
	client  *redis.Client
	options *docStoreOptions
}

// NewDocStore 建立以Redis為後端的拍賣會文件儲存
func NewDocStore(client *redis.Client, opts ...DocStoreOption) (*DocStore, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	options := &docStoreOptions{
		logger:          slog.Default(),
		keyPrefix:       "asta:",
		streamMaxLen:    64,
		subscribeBuffer: 16,
	}
	for _, opt := range opts {
		opt(options)
	}
	return &DocStore{
		client:  client,
		options: options,
	}, nil
}

func (d *DocStore) docKey(id string) string {
	return d.options.keyPrefix + id
}

func (d *DocStore) streamKey(id string) string {
	return d.options.keyPrefix + id + ":events"
}

// Create 建立新的拍賣會文件，ID已存在時返回 auction.ErrSessionExists
func (d *DocStore) Create(ctx context.Context, session *auction.Session) error {
	const op = "DocStore.Create"
	doc, err := encodeSessionDoc(session)
	if err != nil {
		return fmt.Errorf("[%s] Fail to encode session, err=%w", op, err)
	}

	result, err := createDocScript.Run(ctx, d.client,
		[]string{d.docKey(session.ID), d.streamKey(session.ID)},
		doc, session.Version, d.options.streamMaxLen,
	).Int()
	if err != nil {
		return fmt.Errorf("[%s] Fail to run create script, err=%w", op, err)
	}
	if result == 0 {
		return auction.ErrSessionExists
	}
	return nil
}

// Read 讀取拍賣會文件的當前快照
func (d *DocStore) Read(ctx context.Context, id string) (*auction.Session, error) {
	const op = "DocStore.Read"
	doc, err := d.client.HGet(ctx, d.docKey(id), "doc").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, auction.ErrSessionNotFound
		}
		return nil, fmt.Errorf("[%s] Fail to read document, err=%w", op, err)
	}
	session, err := decodeSessionDoc(doc)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to decode session, err=%w", op, err)
	}
	return session, nil
}

// Commit 以條件提交套用修補：只有文件版本仍等於expectedVersion時寫入才成立，
// 否則返回 auction.ErrVersionConflict，呼叫端應重讀後重試
func (d *DocStore) Commit(ctx context.Context, id string, expectedVersion uint64, ops ...auction.PatchOp) (*auction.Session, error) {
	const op = "DocStore.Commit"

	session, err := d.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Version != expectedVersion {
		return nil, auction.ErrVersionConflict
	}
	session.Apply(ops...)

	doc, err := encodeSessionDoc(session)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to encode session, err=%w", op, err)
	}

	result, err := commitDocScript.Run(ctx, d.client,
		[]string{d.docKey(id), d.streamKey(id)},
		strconv.FormatUint(expectedVersion, 10),
		doc,
		strconv.FormatUint(session.Version, 10),
		d.options.streamMaxLen,
	).Int()
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to run commit script, err=%w", op, err)
	}
	switch result {
	case 1:
		return session, nil
	case 0:
		return nil, auction.ErrVersionConflict
	default:
		return nil, auction.ErrSessionNotFound
	}
}

// Subscribe 訂閱拍賣會的狀態快照。
// 返回的channel會先收到當前快照，之後按提交順序收到每次提交後的新快照，
// 呼叫返回的取消函數終止訂閱。
func (d *DocStore) Subscribe(id string) (<-chan auction.Session, func(), error) {
	const op = "DocStore.Subscribe"
	ctx := context.Background()

	// 先記下stream目前的尾端位置再讀快照：這個位置之後的提交必定會被
	// consumer讀到，之前的提交已經含在快照裡，兩邊合起來不漏任何提交
	startID := "0"
	if entries, err := d.client.XRevRangeN(ctx, d.streamKey(id), "+", "-", 1).Result(); err == nil && len(entries) > 0 {
		startID = entries[0].ID
	}

	consumer, err := NewConsumer[auction.Session](d.client, d.streamKey(id),
		WithConsumerLogger[auction.Session](d.options.logger),
		WithConsumerBufferSize[auction.Session](d.options.subscribeBuffer),
		WithConsumerStartID[auction.Session](startID),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("[%s] Fail to create consumer, err=%w", op, err)
	}
	consumer.Start()

	current, err := d.Read(ctx, id)
	if err != nil {
		consumer.Close()
		return nil, nil, err
	}

	out := make(chan auction.Session, d.options.subscribeBuffer)
	go func() {
		defer close(out)
		out <- *current
		// 版本不高於已送出快照的stream內容是快照已涵蓋的重播，
		// 直接丟棄，下游才不會在新狀態之後看到出價倒退
		lastVersion := current.Version
		for snapshot := range consumer.Subscribe() {
			if snapshot.Version <= lastVersion {
				continue
			}
			lastVersion = snapshot.Version
			out <- snapshot
		}
	}()

	return out, consumer.Close, nil
}

// encodeSessionDoc 將文件編碼成與stream payload相同的格式，
// 訂閱端才能用同一套解碼流程處理兩種來源
func encodeSessionDoc(session *auction.Session) (string, error) {
	raw, err := msgpack.Marshal(session)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func decodeSessionDoc(doc string) (*auction.Session, error) {
	raw, err := base64.StdEncoding.DecodeString(doc)
	if err != nil {
		return nil, err
	}
	var session auction.Session
	if err := msgpack.Unmarshal(raw, &session); err != nil {
		return nil, err
	}
	return &session, nil
}
