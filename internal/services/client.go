package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/diewo77/smart-invoices/internal/models"
	"github.com/diewo77/smart-invoices/validation"
	"gorm.io/gorm"
)

// ClientInput carries the editable client fields.
type ClientInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	TaxID   string `json:"tax_id"`
}

func (in ClientInput) normalized() ClientInput {
	return ClientInput{
		Name:    strings.TrimSpace(in.Name),
		Email:   strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:   strings.TrimSpace(in.Phone),
		Address: strings.TrimSpace(in.Address),
		TaxID:   strings.TrimSpace(in.TaxID),
	}
}

func (in ClientInput) validate() error {
	v := make(validation.Violations)
	validation.Required("name", in.Name, v)
	validation.MinLength("name", in.Name, 2, v)
	validation.MaxLength("name", in.Name, 255, v)
	validation.Email("email", in.Email, v)
	validation.MaxLength("phone", in.Phone, 50, v)
	validation.MaxLength("address", in.Address, 500, v)
	validation.MaxLength("tax_id", in.TaxID, 50, v)
	return invalid(v)
}

// ClientListParams filters and pages a client listing.
type ClientListParams struct {
	Search string
	Page   int
	Limit  int
}

// ClientPage is one page of clients.
type ClientPage struct {
	Clients    []models.Client `json:"clients"`
	Pagination Pagination      `json:"pagination"`
}

// ClientService is the client registry. Every query is scoped by owner.
type ClientService struct {
	db *gorm.DB
}

func NewClientService(db *gorm.DB) *ClientService {
	return &ClientService{db: db}
}

func (s *ClientService) Create(ctx context.Context, ownerID uint, in ClientInput) (*models.Client, error) {
	in = in.normalized()
	if err := in.validate(); err != nil {
		return nil, err
	}
	c := models.Client{
		UserID:  ownerID,
		Name:    in.Name,
		Email:   in.Email,
		Phone:   in.Phone,
		Address: in.Address,
		TaxID:   in.TaxID,
	}
	if err := s.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return &c, nil
}

func (s *ClientService) Get(ctx context.Context, ownerID, id uint) (*models.Client, error) {
	var c models.Client
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, ownerID).Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}

func (s *ClientService) Update(ctx context.Context, ownerID, id uint, in ClientInput) (*models.Client, error) {
	in = in.normalized()
	if err := in.validate(); err != nil {
		return nil, err
	}
	c, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Model(c).Updates(map[string]any{
		"name":    in.Name,
		"email":   in.Email,
		"phone":   in.Phone,
		"address": in.Address,
		"tax_id":  in.TaxID,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	return s.Get(ctx, ownerID, id)
}

// Delete removes the client and detaches it from the owner's invoices, which are kept.
func (s *ClientService) Delete(ctx context.Context, ownerID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Client
		if err := tx.Where("id = ? AND user_id = ?", id, ownerID).Take(&c).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("get client: %w", err)
		}
		if err := tx.Model(&models.Invoice{}).
			Where("client_id = ? AND user_id = ?", id, ownerID).
			Update("client_id", nil).Error; err != nil {
			return fmt.Errorf("detach invoices: %w", err)
		}
		if err := tx.Delete(&c).Error; err != nil {
			return fmt.Errorf("delete client: %w", err)
		}
		return nil
	})
}

// List searches name, email and phone case-insensitively, ordered by name.
func (s *ClientService) List(ctx context.Context, ownerID uint, p ClientListParams) (*ClientPage, error) {
	page, limit, err := pageBounds(p.Page, p.Limit)
	if err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Model(&models.Client{}).Where("user_id = ?", ownerID)
	if term := strings.TrimSpace(p.Search); term != "" {
		like := likePattern(term)
		q = q.Where("LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(email) LIKE ? ESCAPE '\\' OR LOWER(phone) LIKE ? ESCAPE '\\'", like, like, like)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count clients: %w", err)
	}
	clients := []models.Client{}
	if err := q.Order("name ASC").Order("id ASC").Limit(limit).Offset((page - 1) * limit).Find(&clients).Error; err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return &ClientPage{Clients: clients, Pagination: newPagination(total, page, limit)}, nil
}

// Owns reports whether clientID belongs to ownerID.
func (s *ClientService) Owns(ctx context.Context, ownerID, clientID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Client{}).
		Where("id = ? AND user_id = ?", clientID, ownerID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check client owner: %w", err)
	}
	return count > 0, nil
}

// FindByName returns the owner's client whose name equals name, ignoring case.
func (s *ClientService) FindByName(ctx context.Context, ownerID uint, name string) (*models.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNotFound
	}
	var c models.Client
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND LOWER(name) = ?", ownerID, strings.ToLower(name)).
		Order("id ASC").
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find client by name: %w", err)
	}
	return &c, nil
}
