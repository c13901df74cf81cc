package service

import (
	"strings"

	"github.com/bitfantasy/forge/internal/config"
	"github.com/bitfantasy/forge/internal/industry/repository"
	"github.com/bitfantasy/forge/internal/shared/market"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Plan      *PlanService
	Recalc    *RecalcService
	Catalog   *CatalogService
	Pricing   *PricingService
	Character *CharacterService
	Export    *ExportService
}

// NewServices 创建服务集合。
// 行情与对象存储按配置可选：缺省时对应能力降级（价格置空、导出仅直接下载）。
func NewServices(db *gorm.DB, repos *repository.Repositories, rdb *redis.Client, cfg *config.Config, logger *zap.Logger) *Services {
	var marketClient *market.Client
	if cfg.Market.BaseURL != "" {
		marketClient = market.NewClient(cfg.Market.BaseURL, cfg.Market.Timeout)
	}

	var minioClient *minio.Client
	if cfg.MinIO.Endpoint != "" {
		mc, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			logger.Warn("对象存储初始化失败，导出降级为直接下载", zap.Error(err))
		} else {
			minioClient = mc
		}
	}

	catalog := NewCatalogService(repos.Catalog, repos.Character)
	pricing := NewPricingService(marketClient, rdb, cfg.Market, logger)
	recalc := NewRecalcService(db, catalog, pricing, logger)
	plan := NewPlanService(repos.Plan, repos.Entry, repos.Line, repos.Catalog, repos.Character, recalc)
	character := NewCharacterService(repos.Character, repos.Catalog)
	export := NewExportService(repos.Plan, repos.Catalog, minioClient, cfg.MinIO.Bucket)

	return &Services{
		Plan:      plan,
		Recalc:    recalc,
		Catalog:   catalog,
		Pricing:   pricing,
		Character: character,
		Export:    export,
	}
}

// generateID 生成32位ID
func generateID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:32]
}
