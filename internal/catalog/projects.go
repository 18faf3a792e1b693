package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/bartek5186/stockhub/internal/apperr"
	"github.com/bartek5186/stockhub/internal/auth"
	"github.com/bartek5186/stockhub/internal/db"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProjectPartInput struct {
	ProjectID        string            `json:"projectId"`
	Name             string            `json:"name"`
	Category         string            `json:"category"`
	Classification   db.Classification `json:"classification"`
	UnitCost         decimal.Decimal   `json:"unitCost"`
	Currency         string            `json:"currency"`
	LinkedMaterialID string            `json:"linkedMaterialId"`
}

func (s *Service) AddProjectPart(ctx context.Context, in ProjectPartInput) (*db.ProjectPart, error) {
	f := apperr.Fields{}
	f.Require("projectId", in.ProjectID)
	f.Require("name", in.Name)
	if in.Classification == "" {
		in.Classification = db.ClassProduct
	}
	if !validClassification(in.Classification) {
		f.Add("classification", "must be material or product")
	}
	cur := normCurrency(in.Currency)
	if cur == "" {
		cur = "USD"
	}
	if !validCurrency(cur) {
		f.Add("currency", "must be a 3-letter ISO code")
	}
	if in.UnitCost.IsNegative() {
		f.Add("unitCost", "must not be negative")
	}
	if err := f.Err(); err != nil {
		return nil, err
	}
	p := &db.ProjectPart{
		ProjectID:        strings.TrimSpace(in.ProjectID),
		Name:             strings.TrimSpace(in.Name),
		Category:         strings.TrimSpace(in.Category),
		Classification:   in.Classification,
		UnitCost:         in.UnitCost.Round(4),
		Currency:         cur,
		LinkedMaterialID: in.LinkedMaterialID,
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ListProjectParts(ctx context.Context, projectID string) ([]db.ProjectPart, error) {
	var out []db.ProjectPart
	err := s.db.WithContext(ctx).Where("project_id = ?", projectID).Order("name ASC").Find(&out).Error
	return out, err
}

// PromoteProjectPart turns a project part into an inventory item linked to
// its project (and material, if any). A part that was promoted before
// returns its existing item and created=false.
func (s *Service) PromoteProjectPart(ctx context.Context, partID string) (item *db.InventoryItem, created bool, err error) {
	actor := auth.ActorFromContext(ctx)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var part db.ProjectPart
		if err := tx.Where("id = ?", partID).Take(&part).Error; err != nil {
			return notFound(err, ErrPartNotFound)
		}
		if part.PromotedItemID != "" {
			var existing db.InventoryItem
			err := tx.Where("id = ?", part.PromotedItemID).Take(&existing).Error
			if err == nil {
				item = &existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			// item vanished, promote again
		}

		item = &db.InventoryItem{
			Name:             part.Name,
			Classification:   part.Classification,
			Category:         part.Category,
			Status:           db.ItemActive,
			UnitCost:         part.UnitCost,
			Currency:         part.Currency,
			Unit:             "pcs",
			LinkedMaterialID: part.LinkedMaterialID,
			LinkedProjectIDs: db.StringList{part.ProjectID},
			CreatedBy:        actor,
		}
		if err := s.createItemTx(tx, item); err != nil {
			return err
		}
		if !part.UnitCost.IsZero() {
			if err := tx.Create(&db.CostHistoryEntry{
				InventoryItemID: item.ID,
				PreviousCost:    decimal.Zero,
				NewCost:         part.UnitCost,
				Currency:        part.Currency,
				Source:          db.CostSourceManual,
				Actor:           actor,
				CreatedAt:       s.now().UTC(),
			}).Error; err != nil {
				return err
			}
		}
		created = true
		return tx.Model(&db.ProjectPart{}).Where("id = ?", part.ID).Update("promoted_item_id", item.ID).Error
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		s.log.Info().Str("part", partID).Str("item", item.ID).Str("sku", item.SKU).Msg("project part promoted")
	}
	return item, created, nil
}
