package backend

import (
	"context"
	"net/http"

	"github.com/utafrali/storefront/internal/domain"
)

type addressDTO struct {
	ID         string `json:"_id,omitempty"`
	Title      string `json:"title,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	District   string `json:"district"`
	PostalCode string `json:"postalCode,omitempty"`
	Phone      string `json:"phone"`
	IsDefault  bool   `json:"isDefault"`
}

func (d addressDTO) toDomain() domain.Address {
	return domain.Address{
		ID:         d.ID,
		Title:      d.Title,
		Street:     d.Street,
		City:       d.City,
		District:   d.District,
		PostalCode: d.PostalCode,
		Phone:      d.Phone,
		IsDefault:  d.IsDefault,
	}
}

func fromDomain(a domain.Address) addressDTO {
	return addressDTO{
		Title:      a.Title,
		Street:     a.Street,
		City:       a.City,
		District:   a.District,
		PostalCode: a.PostalCode,
		Phone:      a.Phone,
		IsDefault:  a.IsDefault,
	}
}

type addressList struct {
	Addresses []addressDTO `json:"addresses"`
}

// ListAddresses returns the shopper's address book.
func (c *Client) ListAddresses(ctx context.Context, token string) ([]domain.Address, error) {
	var resp addressList
	err := c.do(ctx, call{
		name:   "list_addresses",
		method: http.MethodGet,
		path:   "/users/addresses",
		token:  token,
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Address, len(resp.Addresses))
	for i, a := range resp.Addresses {
		out[i] = a.toDomain()
	}
	return out, nil
}

// CreateAddress adds addr to the shopper's address book. The ID of addr is
// ignored; the food API assigns one.
func (c *Client) CreateAddress(ctx context.Context, token string, addr domain.Address) error {
	return c.do(ctx, call{
		name:   "create_address",
		method: http.MethodPost,
		path:   "/users/addresses",
		token:  token,
		body:   fromDomain(addr),
	}, nil)
}

// SetDefaultAddress marks address id as the shopper's default.
func (c *Client) SetDefaultAddress(ctx context.Context, token, id string) error {
	return c.do(ctx, call{
		name:   "set_default_address",
		method: http.MethodPut,
		path:   addressPath(id) + "/default",
		token:  token,
	}, nil)
}

// DeleteAddress removes address id from the shopper's address book.
func (c *Client) DeleteAddress(ctx context.Context, token, id string) error {
	return c.do(ctx, call{
		name:   "delete_address",
		method: http.MethodDelete,
		path:   addressPath(id),
		token:  token,
	}, nil)
}
