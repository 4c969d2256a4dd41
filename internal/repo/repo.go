package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/richardliu001/address-ledger/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrCacheMiss is returned by GetCachedBalance when no balance is cached.
var ErrCacheMiss = errors.New("balance not cached")

// RepositoryInterface restricts Repo methods so the service can be tested with fakes.
type RepositoryInterface interface {
	DB(ctx context.Context) *gorm.DB
	TransactionsByAddress(ctx context.Context, tx *gorm.DB, address string) ([]model.Transaction, error)
	AllTransactions(ctx context.Context, limit int) ([]model.Transaction, error)
	InsertTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) (uint64, error)
	CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error
	PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkOutboxProcessed(ctx context.Context, id uint64) error
	PublishEvent(ctx context.Context, evt model.OutboxEvent) error
	BalanceGeneration(ctx context.Context, address string) (int64, error)
	CacheBalance(ctx context.Context, address string, gen int64, bal decimal.Decimal) (bool, error)
	GetCachedBalance(ctx context.Context, address string) (decimal.Decimal, error)
	InvalidateBalances(ctx context.Context, addresses ...string) error
}

// Repository implements RepositoryInterface.
type Repository struct {
	db       *gorm.DB
	rdb      *redis.Client
	writer   *kafka.Writer
	log      *zap.SugaredLogger
	cacheTTL time.Duration
}

// NewRepository constructs repo. rdb and w may be nil for processes that
// neither cache nor publish.
func NewRepository(db *gorm.DB, rdb *redis.Client, w *kafka.Writer, cacheTTL time.Duration, logger *zap.SugaredLogger) *Repository {
	return &Repository{db: db, rdb: rdb, writer: w, cacheTTL: cacheTTL, log: logger}
}

// Migrate creates or updates the tables the ledger owns.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&model.Transaction{}, &model.OutboxEvent{})
}

// DB returns underlying *gorm.DB
func (r *Repository) DB(ctx context.Context) *gorm.DB { return r.db.WithContext(ctx) }

// TransactionsByAddress returns every record where address is either party.
// No order is implied.
func (r *Repository) TransactionsByAddress(ctx context.Context, tx *gorm.DB, address string) ([]model.Transaction, error) {
	if tx == nil {
		tx = r.db
	}
	var txs []model.Transaction
	err := tx.WithContext(ctx).
		Where("address_from = ? OR address_to = ?", address, address).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("transactions of %s: %w", address, err)
	}
	return txs, nil
}

// AllTransactions lists the ledger, newest first. limit <= 0 means no limit.
func (r *Repository) AllTransactions(ctx context.Context, limit int) ([]model.Transaction, error) {
	q := r.db.WithContext(ctx).Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var txs []model.Transaction
	if err := q.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// InsertTransaction stores a candidate and returns its generated id.
func (r *Repository) InsertTransaction(ctx context.Context, tx *gorm.DB, t *model.Transaction) (uint64, error) {
	if t.Persisted() {
		return 0, fmt.Errorf("insert transaction: already persisted with id %d", t.ID)
	}
	if err := model.CheckAmount(t.Amount); err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return t.ID, nil
}

// CreateOutboxEvent writes event.
func (r *Repository) CreateOutboxEvent(ctx context.Context, tx *gorm.DB, evt *model.OutboxEvent) error {
	return tx.WithContext(ctx).Create(evt).Error
}

// PollOutbox pulls unprocessed events.
func (r *Repository) PollOutbox(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var evts []model.OutboxEvent
	err := r.db.WithContext(ctx).Where("processed = ?", false).Order("id").Limit(limit).Find(&evts).Error
	return evts, err
}

// MarkOutboxProcessed sets processed flag.
func (r *Repository) MarkOutboxProcessed(ctx context.Context, id uint64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.OutboxEvent{}).Where("id = ?", id).
		Updates(map[string]interface{}{"processed": true, "processed_at": &now}).Error
}

// PublishEvent sends to Kafka, keyed by aggregate so one address stays on one partition.
func (r *Repository) PublishEvent(ctx context.Context, evt model.OutboxEvent) error {
	if r.writer == nil {
		return errors.New("publish event: no kafka writer configured")
	}
	msg := kafka.Message{
		Key:   []byte(evt.AggregateID),
		Value: []byte(evt.Payload),
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.EventType)},
			{Key: "event_id", Value: []byte(fmt.Sprintf("%d", evt.ID))},
		},
	}
	return r.writer.WriteMessages(ctx, msg)
}

func balanceKey(address string) string { return "balance:" + address }

// generationKey counts committed writes touching address. A balance computed
// from a read that started at generation n may only be cached while the
// counter still reads n.
func generationKey(address string) string { return "balance:gen:" + address }

var cacheFillScript = redis.NewScript(`
if (redis.call("get", KEYS[2]) or "0") ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("set", KEYS[1], ARGV[2], "px", ARGV[3])
else
	redis.call("set", KEYS[1], ARGV[2])
end
return 1
`)

// KEYS come in (balance, generation) pairs.
var invalidateScript = redis.NewScript(`
for i = 1, #KEYS, 2 do
	redis.call("incr", KEYS[i + 1])
	redis.call("del", KEYS[i])
end
return 1
`)

// BalanceGeneration reads the write generation of address. Read it before
// fetching history and hand it to CacheBalance.
func (r *Repository) BalanceGeneration(ctx context.Context, address string) (int64, error) {
	if r.rdb == nil {
		return 0, nil
	}
	gen, err := r.rdb.Get(ctx, generationKey(address)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// CacheBalance stores bal unless a write to address was invalidated since
// generation gen was read. It reports whether the value was stored.
func (r *Repository) CacheBalance(ctx context.Context, address string, gen int64, bal decimal.Decimal) (bool, error) {
	if r.rdb == nil {
		return false, nil
	}
	keys := []string{balanceKey(address), generationKey(address)}
	n, err := cacheFillScript.Run(ctx, r.rdb, keys, strconv.FormatInt(gen, 10), bal.String(), r.cacheTTL.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetCachedBalance reads Redis.
func (r *Repository) GetCachedBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if r.rdb == nil {
		return decimal.Zero, ErrCacheMiss
	}
	str, err := r.rdb.Get(ctx, balanceKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, ErrCacheMiss
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(str)
}

// InvalidateBalances drops cached balances after a committed write touching
// these addresses and moves their generations on, so reads that started
// before the write cannot cache what they saw.
func (r *Repository) InvalidateBalances(ctx context.Context, addresses ...string) error {
	if r.rdb == nil || len(addresses) == 0 {
		return nil
	}
	keys := make([]string, 0, 2*len(addresses))
	for _, a := range addresses {
		keys = append(keys, balanceKey(a), generationKey(a))
	}
	return invalidateScript.Run(ctx, r.rdb, keys).Err()
}
