// Package partnerclient reads partners and products from the partner service.
package partnerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/iurnickita/cashback/internal/catalog"
	"github.com/iurnickita/cashback/internal/model"
)

// JSON ответы сервиса партнеров
type PartnerAnswer struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	CashbackRate decimal.NullDecimal `json:"cashback_rate"`
	Active       bool                `json:"active"`
}

type ProductAnswer struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Available bool            `json:"available"`
}

const defaultTimeout = 3 * time.Second

type partnerClient struct {
	client *resty.Client
	// одинаковые одновременные запросы уходят в сервис один раз
	group singleflight.Group
}

func NewPartnerClient(serviceAddr string, timeout time.Duration) catalog.Catalog {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetBaseURL(serviceAddr).
		SetTimeout(timeout)
	return &partnerClient{client: client}
}

// Пути с подстановкой id партнера, resty экранирует значения
const (
	partnerPath  = "/api/partners/{partnerID}"
	productsPath = "/api/partners/{partnerID}/products"
)

func (c *partnerClient) get(ctx context.Context, path string, partnerID string, query map[string]string) ([]byte, error) {
	setreq := c.client.R().
		SetContext(ctx).
		SetPathParam("partnerID", partnerID).
		SetQueryParams(query)
	setreq.Method = http.MethodGet
	setreq.URL = path
	setresp, err := setreq.Send()
	if err != nil {
		return nil, err
	}

	switch setresp.StatusCode() {
	case http.StatusOK:
		return setresp.Body(), nil
	case http.StatusNotFound:
		return nil, catalog.ErrNotFound
	default:
		return nil, fmt.Errorf("partner service request status: %d", setresp.StatusCode())
	}
}

func (c *partnerClient) Partner(ctx context.Context, partnerID string) (model.Partner, error) {
	v, err, _ := c.group.Do("partner:"+partnerID, func() (any, error) {
		body, err := c.get(ctx, partnerPath, partnerID, nil)
		if err != nil {
			return nil, err
		}
		var answer PartnerAnswer
		if err = json.Unmarshal(body, &answer); err != nil {
			return nil, err
		}
		return model.Partner{
			ID:           answer.ID,
			Name:         answer.Name,
			CashbackRate: answer.CashbackRate,
			Active:       answer.Active,
		}, nil
	})
	if err != nil {
		return model.Partner{}, err
	}
	return v.(model.Partner), nil
}

func (c *partnerClient) Products(ctx context.Context, partnerID string, productIDs []string) ([]model.Product, error) {
	// запятая - разделитель в параметре ids
	for _, productID := range productIDs {
		if productID == "" || strings.Contains(productID, ",") {
			return nil, fmt.Errorf("%w: product %q", catalog.ErrNotFound, productID)
		}
	}
	ids := strings.Join(productIDs, ",")

	v, err, _ := c.group.Do("products:"+partnerID+"?"+ids, func() (any, error) {
		body, err := c.get(ctx, productsPath, partnerID, map[string]string{"ids": ids})
		if err != nil {
			return nil, err
		}
		var answers []ProductAnswer
		if err = json.Unmarshal(body, &answers); err != nil {
			return nil, err
		}

		byID := make(map[string]ProductAnswer, len(answers))
		for _, answer := range answers {
			byID[answer.ID] = answer
		}
		products := make([]model.Product, 0, len(productIDs))
		for _, productID := range productIDs {
			answer, ok := byID[productID]
			if !ok {
				return nil, fmt.Errorf("%w: product %s", catalog.ErrNotFound, productID)
			}
			products = append(products, model.Product{
				ID:        answer.ID,
				PartnerID: partnerID,
				Name:      answer.Name,
				Price:     answer.Price,
				Available: answer.Available,
			})
		}
		return products, nil
	})
	if err != nil {
		return nil, err
	}
	// срез общий для всех ожидавших
	return append([]model.Product(nil), v.([]model.Product)...), nil
}
