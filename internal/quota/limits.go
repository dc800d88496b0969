package quota

import (
	"context"
	"fmt"
	"strings"

	"tradeproof/pkg/types"

	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/subscription"
)

// LimitSource returns a user's storage limit in bytes.
type LimitSource interface {
	Limit(ctx context.Context, scope types.Scope) int64
}

// PlanLookup resolves the plan key of a user's active subscription. An empty
// key means no paid plan.
type PlanLookup interface {
	PlanKey(ctx context.Context, scope types.Scope) (string, error)
}

// PlanLimits maps plan keys to limits and falls back to a default for users
// without a plan or when the lookup fails.
type PlanLimits struct {
	fallback int64
	plans    map[string]int64
	lookup   PlanLookup
	logger   logrus.FieldLogger
}

func NewPlanLimits(fallback int64, plans map[string]int64, lookup PlanLookup, logger logrus.FieldLogger) *PlanLimits {
	return &PlanLimits{
		fallback: fallback,
		plans:    plans,
		lookup:   lookup,
		logger:   logger,
	}
}

func (p *PlanLimits) Limit(ctx context.Context, scope types.Scope) int64 {
	if p.lookup == nil || len(p.plans) == 0 {
		return p.fallback
	}

	key, err := p.lookup.PlanKey(ctx, scope)
	if err != nil {
		p.logger.WithError(err).WithField("user_id", scope.UserID).Warn("plan lookup failed, using default storage limit")
		return p.fallback
	}

	if limit, ok := p.plans[key]; ok {
		return limit
	}
	return p.fallback
}

// StripePlans reads the lookup key of the price on a user's active
// subscription. Customers are matched on metadata['user_id'].
type StripePlans struct {
	customers     *customer.Client
	subscriptions *subscription.Client
}

func NewStripePlans(secretKey string) *StripePlans {
	backend := stripe.GetBackend(stripe.APIBackend)
	return &StripePlans{
		customers:     &customer.Client{B: backend, Key: secretKey},
		subscriptions: &subscription.Client{B: backend, Key: secretKey},
	}
}

func (s *StripePlans) PlanKey(ctx context.Context, scope types.Scope) (string, error) {

	if err := scope.Validate(); err != nil {
		return "", err
	}

	search := &stripe.CustomerSearchParams{}
	search.Context = ctx
	search.Query = fmt.Sprintf("metadata['user_id']:'%s'", strings.ReplaceAll(scope.UserID, "'", ""))

	customers := s.customers.Search(search)
	if !customers.Next() {
		if err := customers.Err(); err != nil {
			return "", fmt.Errorf("search stripe customers: %w", err)
		}
		return "", nil
	}
	cust := customers.Customer()

	list := &stripe.SubscriptionListParams{
		Customer: stripe.String(cust.ID),
		Status:   stripe.String(string(stripe.SubscriptionStatusActive)),
	}
	list.Context = ctx
	list.Filters.AddFilter("limit", "", "1")

	subs := s.subscriptions.List(list)
	for subs.Next() {
		sub := subs.Subscription()
		if sub.Items == nil {
			continue
		}
		for _, item := range sub.Items.Data {
			if item.Price != nil && item.Price.LookupKey != "" {
				return item.Price.LookupKey, nil
			}
		}
	}

	if err := subs.Err(); err != nil {
		return "", fmt.Errorf("list stripe subscriptions: %w", err)
	}

	return "", nil

}
