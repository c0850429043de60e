package service

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/storage"
)

type ProductInput struct {
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceAmount int64  `json:"priceAmount"`
	Currency    string `json:"currency"`
	Stock       int    `json:"stock"`
	Active      bool   `json:"active"`
}

// ShopService serves the public product catalog and the admin product CRUD,
// including image upload to object storage.
type ShopService interface {
	ListActive(ctx context.Context) ([]model.Product, error)
	GetBySlug(ctx context.Context, slug string) (*model.Product, error)
	ListAll(ctx context.Context) ([]model.Product, error)
	Create(ctx context.Context, input *ProductInput) (*model.Product, error)
	Update(ctx context.Context, id string, input *ProductInput) (*model.Product, error)
	Delete(ctx context.Context, id string) error
	UploadImage(ctx context.Context, id, filename string, r io.Reader) (string, error)
}

type DefaultShopService struct {
	products repository.ProductRepository
	uploader storage.Uploader
}

func NewShopService(products repository.ProductRepository, uploader storage.Uploader) ShopService {
	return &DefaultShopService{products: products, uploader: uploader}
}

func (s *DefaultShopService) ListActive(ctx context.Context) ([]model.Product, error) {
	return s.products.List(ctx, true)
}

func (s *DefaultShopService) GetBySlug(ctx context.Context, slug string) (*model.Product, error) {
	product, err := s.products.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if product == nil || !product.Active {
		return nil, ErrProductNotFound
	}
	return product, nil
}

func (s *DefaultShopService) ListAll(ctx context.Context) ([]model.Product, error) {
	return s.products.List(ctx, false)
}

func (s *DefaultShopService) Create(ctx context.Context, input *ProductInput) (*model.Product, error) {
	if err := validateProductInput(input); err != nil {
		return nil, err
	}

	product := &model.Product{
		ID:          uuid.New().String(),
		Slug:        input.Slug,
		Name:        input.Name,
		Description: input.Description,
		PriceAmount: input.PriceAmount,
		Currency:    strings.ToUpper(input.Currency),
		Stock:       input.Stock,
		Active:      input.Active,
	}
	if err := s.products.Create(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *DefaultShopService) Update(ctx context.Context, id string, input *ProductInput) (*model.Product, error) {
	if err := validateProductInput(input); err != nil {
		return nil, err
	}

	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, ErrProductNotFound
	}

	product.Slug = input.Slug
	product.Name = input.Name
	product.Description = input.Description
	product.PriceAmount = input.PriceAmount
	product.Currency = strings.ToUpper(input.Currency)
	product.Stock = input.Stock
	product.Active = input.Active

	if err := s.products.Update(ctx, product); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *DefaultShopService) Delete(ctx context.Context, id string) error {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if product == nil {
		return ErrProductNotFound
	}
	return s.products.Delete(ctx, id)
}

func (s *DefaultShopService) UploadImage(ctx context.Context, id, filename string, r io.Reader) (string, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if product == nil {
		return "", ErrProductNotFound
	}

	url, err := s.uploader.UploadProductImage(filename, r)
	if err != nil {
		return "", err
	}
	if err := s.products.SetImageURL(ctx, id, url); err != nil {
		return "", err
	}
	return url, nil
}

func validateProductInput(input *ProductInput) error {
	if input.Name == "" || input.Slug == "" {
		return ErrMissingFields
	}
	if !slugPattern.MatchString(input.Slug) {
		return ErrMissingFields
	}
	if input.PriceAmount < 0 || input.Stock < 0 {
		return ErrInvalidAmount
	}
	if input.Currency == "" {
		input.Currency = "GBP"
	}
	return nil
}
