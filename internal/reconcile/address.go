package reconcile

import (
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

// resolveAddress собирает адрес доставки для размещения заказа у поставщика.
// Приоритет источников: профиль покупателя → адрес из платёжного события →
// адрес из перечитанного счёта. Возвращается первый полный адрес; если полного
// нет ни в одном источнике — лучший неполный кандидат и ErrAddressIncomplete.
func (d *Dispatcher) resolveAddress(lot domain.Lot, e PaymentEvent) (domain.ShippingAddress, error) {
	var fallback domain.ShippingAddress

	consider := func(addr domain.ShippingAddress) bool {
		if addr.Empty() {
			return false
		}
		if addr.Validate() == nil {
			fallback = addr
			return true
		}
		if fallback.Empty() {
			fallback = addr
		}
		return false
	}

	if d.buyers != nil && lot.WinnerID != "" {
		addr, err := d.buyers.ShippingAddress(lot.WinnerID)
		switch {
		case err == nil:
			if consider(addr) {
				return fallback, nil
			}
		case errors.Is(err, domain.ErrAddressNotFound):
			// У покупателя просто нет профильного адреса, идём дальше.
		default:
			d.logger.WithError(err).WithFields(log.Fields{
				"lot_id":   lot.ID,
				"buyer_id": lot.WinnerID,
			}).Warn("buyer directory lookup failed")
		}
	}

	if e.HasShipping && consider(e.Shipping) {
		return fallback, nil
	}

	if d.gateway != nil && e.InvoiceID != "" {
		invoice, err := d.gateway.GetInvoice(e.InvoiceID)
		if err != nil {
			d.logger.WithError(err).WithField("invoice_id", e.InvoiceID).Warn("invoice refetch for address failed")
		} else if invoice.HasShipping && consider(invoice.Shipping) {
			return fallback, nil
		}
	}

	return fallback, domain.ErrAddressIncomplete
}
