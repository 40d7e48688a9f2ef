package service

import (
	"context"

	"github.com/bitfantasy/sitemat/internal/procure/entity"
	"github.com/bitfantasy/sitemat/internal/procure/repository"
	"github.com/google/uuid"
)

// VendorService 供应商服务
type VendorService struct {
	repo *repository.VendorRepository
}

func NewVendorService(repo *repository.VendorRepository) *VendorService {
	return &VendorService{repo: repo}
}

// CreateVendorRequest 创建供应商请求
type CreateVendorRequest struct {
	Code    string `json:"code" binding:"required"`
	Name    string `json:"name" binding:"required"`
	Contact string `json:"contact"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// Create 创建供应商
func (s *VendorService) Create(ctx context.Context, userID string, req *CreateVendorRequest) (*entity.Vendor, error) {
	vendor := &entity.Vendor{
		ID:        uuid.New().String()[:32],
		Code:      req.Code,
		Name:      req.Name,
		Contact:   req.Contact,
		Phone:     req.Phone,
		Address:   req.Address,
		Status:    entity.VendorStatusActive,
		CreatedBy: userID,
	}
	if err := s.repo.Create(ctx, vendor); err != nil {
		return nil, err
	}
	return vendor, nil
}

// Get 供应商详情
func (s *VendorService) Get(ctx context.Context, id string) (*entity.Vendor, error) {
	return s.repo.FindByID(ctx, id)
}

// List 供应商列表
func (s *VendorService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Vendor, int64, error) {
	return s.repo.FindAll(ctx, page, pageSize, filters)
}
