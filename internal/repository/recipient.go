package repository

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	apperrors "WaBlast/pkg/errors"

	"WaBlast/internal/model"
)

// RecipientRepository 收件人与关联单据的只读访问
type RecipientRepository struct {
	db *gorm.DB
}

func NewRecipientRepository(db *gorm.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

func (r *RecipientRepository) GetByID(ctx context.Context, id int64) (*model.Recipient, error) {
	var recipient model.Recipient
	err := r.db.WithContext(ctx).First(&recipient, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &recipient, nil
}

// FindByMobile 入站消息定位收件人：按收到的号码和 "+" 前缀形式各试一次
func (r *RecipientRepository) FindByMobile(ctx context.Context, mobile string) (*model.Recipient, error) {
	var recipient model.Recipient
	err := r.db.WithContext(ctx).
		Where("mobile IN ?", []string{mobile, "+" + mobile}).
		First(&recipient).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &recipient, nil
}

// FindByAudience 受众解析：类型化谓词 + 标签集合，未知字段或操作符直接报错（fail closed）
func (r *RecipientRepository) FindByAudience(ctx context.Context, audience model.Audience) ([]model.Recipient, error) {
	query := r.db.WithContext(ctx).Model(&model.Recipient{})

	for _, p := range audience.Filters {
		q, err := applyPredicate(query, p)
		if err != nil {
			return nil, err
		}
		query = q
	}

	// 标签匹配：收件人需包含任一标签（JSONB 包含判断）
	if len(audience.Tags) > 0 {
		tagClause := r.db.Session(&gorm.Session{NewDB: true}).Model(&model.Recipient{})
		for i, tag := range audience.Tags {
			member, err := json.Marshal([]string{tag})
			if err != nil {
				return nil, apperrors.FilterInvalid
			}
			if i == 0 {
				tagClause = tagClause.Where("tags::jsonb @> ?", string(member))
			} else {
				tagClause = tagClause.Or("tags::jsonb @> ?", string(member))
			}
		}
		query = query.Where(tagClause)
	}

	var recipients []model.Recipient
	err := query.Order("id ASC").Find(&recipients).Error
	return recipients, err
}

var predicateColumns = map[string]string{
	"mobile":   "mobile",
	"name":     "name",
	"opt_in":   "opt_in",
	"owner_id": "owner_id",
}

func applyPredicate(query *gorm.DB, p model.Predicate) (*gorm.DB, error) {
	column, ok := predicateColumns[p.Field]
	if !ok {
		return nil, apperrors.FilterInvalid
	}

	switch p.Operator {
	case "eq":
		return query.Where(column+" = ?", p.Value), nil
	case "neq":
		return query.Where(column+" <> ?", p.Value), nil
	case "contains":
		return query.Where(column+" ILIKE ?", "%"+p.Value+"%"), nil
	case "set":
		return query.Where(column + " IS NOT NULL AND " + column + " <> ''"), nil
	case "not_set":
		return query.Where(column + " IS NULL OR " + column + " = ''"), nil
	default:
		return nil, apperrors.FilterInvalid
	}
}

// LatestOrder 收件人最近的业务单据，没有返回 nil
func (r *RecipientRepository) LatestOrder(ctx context.Context, recipientID int64) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}
