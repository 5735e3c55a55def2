package domain

import "strings"

// ShippingAddress — адрес доставки победителя аукциона.
// Сериализуется в хранилище как JSON.
type ShippingAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// requiredAddressFields перечисляет поля, без которых заказ поставщику не размещается.
func (a ShippingAddress) requiredAddressFields() map[string]string {
	return map[string]string{
		"name":        a.Name,
		"line1":       a.Line1,
		"city":        a.City,
		"state":       a.State,
		"postal_code": a.PostalCode,
		"country":     a.Country,
	}
}

// MissingFields возвращает имена обязательных полей, которые отсутствуют.
// Пустые строки и строки из одних пробелов считаются отсутствующими.
func (a ShippingAddress) MissingFields() []string {
	var missing []string
	for _, field := range []string{"name", "line1", "city", "state", "postal_code", "country"} {
		if strings.TrimSpace(a.requiredAddressFields()[field]) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// Validate возвращает ErrAddressIncomplete, если не хватает обязательных полей.
func (a ShippingAddress) Validate() error {
	if len(a.MissingFields()) > 0 {
		return ErrAddressIncomplete
	}
	return nil
}

// Empty сообщает, заполнено ли хотя бы одно поле адреса.
func (a ShippingAddress) Empty() bool {
	return strings.TrimSpace(a.Name) == "" &&
		strings.TrimSpace(a.Line1) == "" &&
		strings.TrimSpace(a.City) == "" &&
		strings.TrimSpace(a.State) == "" &&
		strings.TrimSpace(a.PostalCode) == "" &&
		strings.TrimSpace(a.Country) == ""
}
