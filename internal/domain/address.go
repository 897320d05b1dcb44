package domain

// Address is a delivery address owned by the shopper's profile on the food
// API. Checkout keeps a snapshot of it and never mutates it.
type Address struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	Street     string `json:"street"`
	City       string `json:"city"`
	District   string `json:"district"`
	PostalCode string `json:"postal_code,omitempty"`
	Phone      string `json:"phone"`
	IsDefault  bool   `json:"is_default"`
}

// DeliveryAddress is the address snapshot embedded in an order.
type DeliveryAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	District   string `json:"district"`
	PostalCode string `json:"postal_code,omitempty"`
	Phone      string `json:"phone"`
}

// Delivery returns the fields of a needed to deliver an order.
func (a Address) Delivery() DeliveryAddress {
	return DeliveryAddress{
		Street:     a.Street,
		City:       a.City,
		District:   a.District,
		PostalCode: a.PostalCode,
		Phone:      a.Phone,
	}
}

// Missing returns the names of required delivery fields that are empty.
func (a Address) Missing() []string {
	fields := []struct{ name, value string }{
		{"street", a.Street},
		{"city", a.City},
		{"district", a.District},
		{"phone", a.Phone},
	}
	var missing []string
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}
