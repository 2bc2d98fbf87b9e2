package cohort

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
	"github.com/synaptica-ai/cohort-builder/pkg/criteria"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrCohortNotFound = errors.New("cohort not found")

type definitionModel struct {
	ID           string         `gorm:"primaryKey;column:id"`
	Name         string         `gorm:"column:name"`
	Description  string         `gorm:"column:description"`
	CDRVersionID int64          `gorm:"column:cdr_version_id"`
	Criteria     datatypes.JSON `gorm:"column:criteria"`
	Fingerprint  string         `gorm:"column:fingerprint;index"`
	CreatedAt    time.Time      `gorm:"column:created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at"`
}

func (definitionModel) TableName() string {
	return "cohort_definitions"
}

func (m definitionModel) toCohort() (models.Cohort, error) {
	c := models.Cohort{
		ID:           m.ID,
		Name:         m.Name,
		Description:  m.Description,
		CDRVersionID: m.CDRVersionID,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if len(m.Criteria) > 0 {
		if err := json.Unmarshal(m.Criteria, &c.Criteria); err != nil {
			return models.Cohort{}, fmt.Errorf("decode criteria of cohort %s: %w", m.ID, err)
		}
	}
	return c, nil
}

// DefinitionRepository persists saved cohort definitions. The criteria are
// stored as the serialized SearchRequest.
type DefinitionRepository struct {
	db *gorm.DB
}

func NewDefinitionRepository(db *gorm.DB) *DefinitionRepository {
	return &DefinitionRepository{db: db}
}

func (r *DefinitionRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&definitionModel{})
}

// Save validates and stores a cohort, assigning an id when missing.
func (r *DefinitionRepository) Save(ctx context.Context, c models.Cohort) (models.Cohort, error) {
	if err := criteria.ValidateRequest(c.Criteria); err != nil {
		return models.Cohort{}, err
	}
	payload, err := json.Marshal(c.Criteria)
	if err != nil {
		return models.Cohort{}, err
	}
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.New().String()
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	model := definitionModel{
		ID:           c.ID,
		Name:         c.Name,
		Description:  c.Description,
		CDRVersionID: c.CDRVersionID,
		Criteria:     datatypes.JSON(payload),
		Fingerprint:  criteria.RequestFingerprint(c.Criteria),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if err := r.db.WithContext(ctx).Save(&model).Error; err != nil {
		return models.Cohort{}, err
	}
	return c, nil
}

func (r *DefinitionRepository) Get(ctx context.Context, id string) (models.Cohort, error) {
	var model definitionModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return models.Cohort{}, ErrCohortNotFound
	}
	if result.Error != nil {
		return models.Cohort{}, result.Error
	}
	return model.toCohort()
}

func (r *DefinitionRepository) List(ctx context.Context, limit int) ([]models.Cohort, error) {
	if limit <= 0 {
		limit = 25
	}
	var rows []definitionModel
	if err := r.db.WithContext(ctx).Order("updated_at desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Cohort, 0, len(rows))
	for _, row := range rows {
		c, err := row.toCohort()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// FindEquivalent returns saved cohorts whose criteria are functionally the
// same as req.
func (r *DefinitionRepository) FindEquivalent(ctx context.Context, req models.SearchRequest) ([]models.Cohort, error) {
	var rows []definitionModel
	if err := r.db.WithContext(ctx).Where("fingerprint = ?", criteria.RequestFingerprint(req)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Cohort, 0, len(rows))
	for _, row := range rows {
		c, err := row.toCohort()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
