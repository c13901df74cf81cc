package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bitfantasy/forge/internal/config"
	"github.com/bitfantasy/forge/internal/shared/market"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PricingService 行情估价服务。
// 实现重算引擎消费的 PriceSource 协作方，带Redis缓存；
// 单个物品估价失败只降级（返回nil价格），不中断整次重算。
type PricingService struct {
	market *market.Client
	rdb    *redis.Client
	cfg    config.MarketConfig
	logger *zap.Logger
}

func NewPricingService(client *market.Client, rdb *redis.Client, cfg config.MarketConfig, logger *zap.Logger) *PricingService {
	return &PricingService{
		market: client,
		rdb:    rdb,
		cfg:    cfg,
		logger: logger,
	}
}

// EstimatePrice 估算类型单价。
// 行情服务不可用或未收录该类型时返回 nil（调用方保留旧价或置空），
// 仅在上下文取消时返回错误。
func (s *PricingService) EstimatePrice(ctx context.Context, typeID int64, quantity float64) (*float64, error) {
	if s.market == nil {
		return nil, nil
	}

	cacheKey := fmt.Sprintf("price:%s:%s:%d", s.cfg.Region, s.cfg.PriceKind, typeID)

	// 先查缓存
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, cacheKey).Result(); err == nil {
			if price, err := strconv.ParseFloat(cached, 64); err == nil {
				return &price, nil
			}
		}
	}

	quote, err := s.market.EstimatePrice(ctx, typeID, s.cfg.Region, s.cfg.Location, s.cfg.PriceKind, quantity)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("行情估价失败，该类型价格置空",
			zap.Int64("type_id", typeID),
			zap.Error(err))
		return nil, nil
	}

	// 写缓存
	if s.rdb != nil {
		s.rdb.Set(ctx, cacheKey, strconv.FormatFloat(quote.UnitPrice, 'f', -1, 64), s.cfg.CacheTTL)
	}

	price := quote.UnitPrice
	return &price, nil
}
