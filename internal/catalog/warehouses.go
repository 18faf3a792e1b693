package catalog

import (
	"context"
	"strings"

	"github.com/bartek5186/stockhub/internal/apperr"
	"github.com/bartek5186/stockhub/internal/db"
	"gorm.io/gorm"
)

type WarehouseInput struct {
	SubsidiaryID string           `json:"subsidiaryId"`
	Code         string           `json:"code"`
	Name         string           `json:"name"`
	Type         db.WarehouseType `json:"type"`
	Address      string           `json:"address"`
}

type WarehouseFilter struct {
	SubsidiaryID string
	ActiveOnly   bool
}

func validWarehouseType(t db.WarehouseType) bool {
	switch t {
	case db.WarehouseMain, db.WarehouseSatellite, db.WarehouseTransit, db.WarehouseVirtual:
		return true
	}
	return false
}

func (in *WarehouseInput) normalize() error {
	in.Code = strings.ToUpper(strings.TrimSpace(in.Code))
	in.Name = strings.TrimSpace(in.Name)
	in.SubsidiaryID = strings.TrimSpace(in.SubsidiaryID)
	if in.Type == "" {
		in.Type = db.WarehouseMain
	}
	f := apperr.Fields{}
	f.Require("code", in.Code)
	f.Require("name", in.Name)
	if len(in.Code) > 32 {
		f.Add("code", "must be at most 32 characters")
	}
	if !validWarehouseType(in.Type) {
		f.Add("type", "must be main, satellite, transit or virtual")
	}
	return f.Err()
}

func codeTaken(tx *gorm.DB, subsidiary, code, exceptID string) (bool, error) {
	q := tx.Model(&db.Warehouse{}).Where("subsidiary_id = ? AND code = ?", subsidiary, code)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	var n int64
	err := q.Count(&n).Error
	return n > 0, err
}

func (s *Service) CreateWarehouse(ctx context.Context, in WarehouseInput) (*db.Warehouse, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	wh := &db.Warehouse{
		SubsidiaryID: in.SubsidiaryID,
		Code:         in.Code,
		Name:         in.Name,
		Type:         in.Type,
		Address:      in.Address,
		IsActive:     true,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := codeTaken(tx, wh.SubsidiaryID, wh.Code, "")
		if err != nil {
			return err
		}
		if taken {
			return ErrWarehouseCodeExists
		}
		if err := tx.Create(wh).Error; err != nil {
			if isUniqueViolation(err) {
				return ErrWarehouseCodeExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("warehouse", wh.ID).Str("code", wh.Code).Msg("warehouse created")
	return wh, nil
}

// UpdateWarehouse rewrites the editable fields. A renamed warehouse has its
// name copied onto its stock levels.
func (s *Service) UpdateWarehouse(ctx context.Context, id string, in WarehouseInput) (*db.Warehouse, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}
	var wh db.Warehouse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&wh).Error; err != nil {
			return notFound(err, ErrWarehouseNotFound)
		}
		taken, err := codeTaken(tx, in.SubsidiaryID, in.Code, id)
		if err != nil {
			return err
		}
		if taken {
			return ErrWarehouseCodeExists
		}
		if err := tx.Model(&db.Warehouse{}).Where("id = ?", id).Updates(map[string]any{
			"subsidiary_id": in.SubsidiaryID,
			"code":          in.Code,
			"name":          in.Name,
			"type":          in.Type,
			"address":       in.Address,
		}).Error; err != nil {
			return err
		}
		if wh.Name != in.Name {
			if err := tx.Model(&db.StockLevel{}).Where("warehouse_id = ?", id).
				Update("warehouse_name", in.Name).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", id).Take(&wh).Error
	})
	if err != nil {
		return nil, err
	}
	return &wh, nil
}

func (s *Service) GetWarehouse(ctx context.Context, id string) (*db.Warehouse, error) {
	var wh db.Warehouse
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&wh).Error; err != nil {
		return nil, notFound(err, ErrWarehouseNotFound)
	}
	return &wh, nil
}

// WarehouseByCode looks a warehouse up by code in any subsidiary; used by
// imports that only know the code.
func (s *Service) WarehouseByCode(ctx context.Context, code string) (*db.Warehouse, error) {
	var wh db.Warehouse
	err := s.db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		Order("is_active DESC").
		Take(&wh).Error
	if err != nil {
		return nil, notFound(err, ErrWarehouseNotFound)
	}
	return &wh, nil
}

func (s *Service) ListWarehouses(ctx context.Context, f WarehouseFilter) ([]db.Warehouse, error) {
	q := s.db.WithContext(ctx).Model(&db.Warehouse{})
	if f.SubsidiaryID != "" {
		q = q.Where("subsidiary_id = ?", f.SubsidiaryID)
	}
	if f.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	var out []db.Warehouse
	err := q.Order("code ASC").Find(&out).Error
	return out, err
}

// DeactivateWarehouse is refused while the warehouse holds any stock.
func (s *Service) DeactivateWarehouse(ctx context.Context, id string) (*db.Warehouse, error) {
	var wh db.Warehouse
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&wh).Error; err != nil {
			return notFound(err, ErrWarehouseNotFound)
		}
		var n int64
		if err := tx.Model(&db.StockLevel{}).
			Where("warehouse_id = ? AND (quantity_on_hand > 0 OR quantity_reserved > 0)", id).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrWarehouseHasStock
		}
		if err := tx.Model(&db.Warehouse{}).Where("id = ?", id).Update("is_active", false).Error; err != nil {
			return err
		}
		wh.IsActive = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("warehouse", id).Msg("warehouse deactivated")
	return &wh, nil
}

func (s *Service) ActivateWarehouse(ctx context.Context, id string) (*db.Warehouse, error) {
	res := s.db.WithContext(ctx).Model(&db.Warehouse{}).Where("id = ?", id).Update("is_active", true)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrWarehouseNotFound
	}
	return s.GetWarehouse(ctx, id)
}
