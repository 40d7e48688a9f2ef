package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bitfantasy/sitemat/internal/procure/entity"
	"github.com/bitfantasy/sitemat/internal/procure/repository"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const stockCacheTTL = 15 * time.Second

// InventoryService 库存预言机：给定物料名返回当前库存量与单位。
// 流程引擎只读库存做路径判定，从不修改。
type InventoryService struct {
	repo *repository.InventoryRepository
	rdb  *redis.Client
}

func NewInventoryService(repo *repository.InventoryRepository, rdb *redis.Client) *InventoryService {
	return &InventoryService{repo: repo, rdb: rdb}
}

type stockReading struct {
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// StockFor 读取物料库存。未登记的物料按零库存处理（直发会被拒）。
func (s *InventoryService) StockFor(ctx context.Context, materialName string) (float64, string, error) {
	key := "sitemat:stock:" + materialName
	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, key).Result(); err == nil && cached != "" {
			var r stockReading
			if json.Unmarshal([]byte(cached), &r) == nil {
				return r.Quantity, r.Unit, nil
			}
		}
	}

	rec, err := s.repo.FindByMaterial(ctx, materialName)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, "pcs", nil
		}
		return 0, "", err
	}

	if s.rdb != nil {
		if data, err := json.Marshal(stockReading{Quantity: rec.Quantity, Unit: rec.Unit}); err == nil {
			s.rdb.Set(ctx, key, data, stockCacheTTL)
		}
	}
	return rec.Quantity, rec.Unit, nil
}

// UpsertRequest 库存读数写入请求（外部库存系统同步用）
type UpsertRequest struct {
	MaterialName string  `json:"material_name" binding:"required"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
}

// Upsert 写入库存读数并失效缓存
func (s *InventoryService) Upsert(ctx context.Context, req *UpsertRequest) (*entity.InventoryRecord, error) {
	unit := req.Unit
	if unit == "" {
		unit = "pcs"
	}
	rec := &entity.InventoryRecord{
		ID:           uuid.New().String()[:32],
		MaterialName: req.MaterialName,
		Quantity:     req.Quantity,
		Unit:         unit,
	}
	if err := s.repo.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	if s.rdb != nil {
		s.rdb.Del(ctx, "sitemat:stock:"+req.MaterialName)
	}
	return rec, nil
}

// List 库存列表
func (s *InventoryService) List(ctx context.Context, page, pageSize int) ([]entity.InventoryRecord, int64, error) {
	return s.repo.FindAll(ctx, page, pageSize)
}
