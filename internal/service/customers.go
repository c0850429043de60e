package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/nickcalamaro/DiceBastion-sub000/internal/model"
	"github.com/nickcalamaro/DiceBastion-sub000/internal/repository"
)

// ensureProviderCustomer resolves the SumUp customer record for a user,
// creating one when the provider has no record. The customer id is derived
// from the user id so a lost local reference can be self-healed.
func ensureProviderCustomer(ctx context.Context, provider PaymentProvider, users repository.UserRepository, user *model.User) (string, error) {
	customerID := user.SumUpCustomerID.String
	if customerID == "" {
		customerID = "dicebastion-" + user.ID
	}

	if _, err := provider.GetCustomer(ctx, customerID); err != nil {
		log.Info().Str("customerId", customerID).Msg("sumup customer not found, creating")
		if _, err := provider.CreateCustomer(ctx, customerID, user.Name, user.Email); err != nil {
			return "", fmt.Errorf("create sumup customer: %w", err)
		}
	}

	if !user.SumUpCustomerID.Valid || user.SumUpCustomerID.String != customerID {
		if err := users.SetSumUpCustomerID(ctx, user.ID, customerID); err != nil {
			log.Error().Err(err).Str("userId", user.ID).Msg("failed to store sumup customer id")
		}
	}
	return customerID, nil
}
