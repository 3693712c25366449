package paymentpages

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-agent-auth/store"
	"github.com/jrsteele09/go-agent-auth/vault"
)

var ErrNotFound = errors.New("payment page not found")

// Page is a card-issuer verification page handed to the user's browser. Pages
// are short lived and survive only briefly once they have been opened.
type Page struct {
	ID        string    `json:"id"`
	HTML      string    `json:"html"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"createdAt"`
}

type Repo struct {
	store   store.Store
	nowTime func() time.Time
}

func NewRepo(s store.Store, nowTime func() time.Time) *Repo {
	if nowTime == nil {
		nowTime = time.Now
	}
	return &Repo{store: s, nowTime: nowTime}
}

// Create stores the page and returns its id.
func (r *Repo) Create(ctx context.Context, html string) (string, error) {
	if html == "" {
		return "", errors.New("[paymentpages.Create] page html is empty")
	}
	page := Page{
		ID:        vault.NewID(),
		HTML:      html,
		CreatedAt: r.nowTime(),
	}
	if err := store.PutJSON(ctx, r.store, store.PaymentPageKey(page.ID), page, store.PaymentPageTTL); err != nil {
		return "", fmt.Errorf("[paymentpages.Create] %w", err)
	}
	return page.ID, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*Page, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	var page Page
	if err := store.GetJSON(ctx, r.store, store.PaymentPageKey(id), &page); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("[paymentpages.Get] %w", err)
	}
	return &page, nil
}

// MarkUsed flags the page as opened and cuts its remaining lifetime to a
// minute so a reload still works but the link soon dies.
func (r *Repo) MarkUsed(ctx context.Context, page *Page) error {
	if page.Used {
		return nil
	}
	page.Used = true
	if err := store.PutJSON(ctx, r.store, store.PaymentPageKey(page.ID), page, store.UsedPaymentPageTTL); err != nil {
		return fmt.Errorf("[paymentpages.MarkUsed] %w", err)
	}
	return nil
}
