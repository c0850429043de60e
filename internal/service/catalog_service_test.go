package service_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/service"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/testutil"
)

type fakeUploader struct {
	uploaded []string
}

func (u *fakeUploader) UploadProductImage(filename string, r io.Reader) (string, error) {
	io.Copy(io.Discard, r)
	u.uploaded = append(u.uploaded, filename)
	return "https://cdn.example.com/products/" + filename, nil
}

func eventInput() *service.EventInput {
	return &service.EventInput{
		Slug:        "commander-night",
		Title:       "Commander Night",
		StartsAt:    time.Now().AddDate(0, 0, 14),
		PriceAmount: 750,
		Capacity:    16,
		Published:   true,
	}
}

func TestEventCRUD(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := service.NewEventService(repository.NewEventRepository(db))
	ctx := context.Background()

	created, err := svc.Create(ctx, eventInput())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "GBP", created.Currency)

	got, err := svc.GetBySlug(ctx, "commander-night")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	input := eventInput()
	input.Title = "Commander League"
	input.Published = false
	updated, err := svc.Update(ctx, created.ID, input)
	require.NoError(t, err)
	assert.Equal(t, "Commander League", updated.Title)

	// Unpublished events disappear from the public surface.
	_, err = svc.GetBySlug(ctx, "commander-night")
	assert.ErrorIs(t, err, service.ErrEventNotFound)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	published, err := svc.ListPublished(ctx)
	require.NoError(t, err)
	assert.Empty(t, published)

	require.NoError(t, svc.Delete(ctx, created.ID))
	assert.ErrorIs(t, svc.Delete(ctx, created.ID), service.ErrEventNotFound)
}

func TestEventValidation(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := service.NewEventService(repository.NewEventRepository(db))
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(in *service.EventInput)
		want   error
	}{
		{"missing title", func(in *service.EventInput) { in.Title = "" }, service.ErrMissingFields},
		{"missing start", func(in *service.EventInput) { in.StartsAt = time.Time{} }, service.ErrMissingFields},
		{"bad slug", func(in *service.EventInput) { in.Slug = "Commander Night!" }, service.ErrMissingFields},
		{"negative price", func(in *service.EventInput) { in.PriceAmount = -1 }, service.ErrInvalidAmount},
		{"negative capacity", func(in *service.EventInput) { in.Capacity = -4 }, service.ErrInvalidAmount},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := eventInput()
			tc.mutate(input)
			_, err := svc.Create(ctx, input)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestProductCRUDAndImageUpload(t *testing.T) {
	db := testutil.OpenDB(t)
	uploader := &fakeUploader{}
	svc := service.NewShopService(repository.NewProductRepository(db), uploader)
	ctx := context.Background()

	created, err := svc.Create(ctx, &service.ProductInput{
		Slug:        "dice-tray",
		Name:        "Dice Tray",
		PriceAmount: 1500,
		Stock:       10,
		Active:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, "GBP", created.Currency)

	got, err := svc.GetBySlug(ctx, "dice-tray")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	url, err := svc.UploadImage(ctx, created.ID, "tray.jpg", strings.NewReader("jpegdata"))
	require.NoError(t, err)
	assert.Contains(t, url, "tray.jpg")
	assert.Equal(t, []string{"tray.jpg"}, uploader.uploaded)

	got, err = svc.GetBySlug(ctx, "dice-tray")
	require.NoError(t, err)
	assert.Equal(t, url, got.ImageURL)

	input := &service.ProductInput{Slug: "dice-tray", Name: "Dice Tray", PriceAmount: 1500, Stock: 10, Active: false}
	_, err = svc.Update(ctx, created.ID, input)
	require.NoError(t, err)
	_, err = svc.GetBySlug(ctx, "dice-tray")
	assert.ErrorIs(t, err, service.ErrProductNotFound)

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.UploadImage(ctx, created.ID, "tray.jpg", strings.NewReader("x"))
	assert.ErrorIs(t, err, service.ErrProductNotFound)
}

func TestProductValidation(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := service.NewShopService(repository.NewProductRepository(db), &fakeUploader{})
	ctx := context.Background()

	_, err := svc.Create(ctx, &service.ProductInput{Slug: "x", Name: ""})
	assert.ErrorIs(t, err, service.ErrMissingFields)

	_, err = svc.Create(ctx, &service.ProductInput{Slug: "ok", Name: "OK", Stock: -1})
	assert.ErrorIs(t, err, service.ErrInvalidAmount)
}
