package domain

import "time"

// LotStatus описывает жизненный цикл лота от закупки до доставки.
type LotStatus string

const (
	// LotStatusSourced — товар выбран у поставщика, лот создан, но ещё не выставлен.
	LotStatusSourced LotStatus = "SOURCED"
	// LotStatusListed — лот заведён на аукционной площадке (черновик).
	LotStatusListed LotStatus = "LISTED"
	// LotStatusPublished — лот опубликован и принимает ставки.
	LotStatusPublished LotStatus = "PUBLISHED"
	// LotStatusAuctionClosed — аукцион закрыт, победитель зафиксирован, ждём оплату.
	LotStatusAuctionClosed LotStatus = "AUCTION_CLOSED"
	// LotStatusPaid — оплата победителя подтверждена платёжным провайдером.
	LotStatusPaid LotStatus = "PAID"
	// LotStatusCJOrdered — заказ размещён у поставщика.
	LotStatusCJOrdered LotStatus = "CJ_ORDERED"
	// LotStatusCJPaid — заказ поставщику оплачен.
	LotStatusCJPaid LotStatus = "CJ_PAID"
	// LotStatusShipped — поставщик отгрузил заказ, есть трек-номер.
	LotStatusShipped LotStatus = "SHIPPED"
	// LotStatusDelivered — покупатель получил товар (терминальный статус).
	LotStatusDelivered LotStatus = "DELIVERED"
	// LotStatusReserveNotMet — аукцион закрыт без достижения резервной цены.
	LotStatusReserveNotMet LotStatus = "RESERVE_NOT_MET"
	// LotStatusPaymentFailed — оплата отклонена; возможен повторный успешный платёж.
	LotStatusPaymentFailed LotStatus = "PAYMENT_FAILED"
	// LotStatusCJOutOfStock — поставщик не может исполнить заказ: нет товара.
	LotStatusCJOutOfStock LotStatus = "CJ_OUT_OF_STOCK"
	// LotStatusCJPriceChanged — поставщик поднял цену выше заложенного буфера.
	LotStatusCJPriceChanged LotStatus = "CJ_PRICE_CHANGED"
	// LotStatusAddressIncomplete — у победителя нет валидного адреса доставки;
	// заказ поставщику не размещается до ручного вмешательства.
	LotStatusAddressIncomplete LotStatus = "ADDRESS_INCOMPLETE"
	// LotStatusCancelled — лот отменён (терминальный статус).
	LotStatusCancelled LotStatus = "CANCELLED"
)

// lotTransitions — единственный источник правды о допустимых переходах статусов.
// Любая запись, которая пытается пройти по отсутствующему ребру, отклоняется.
var lotTransitions = map[LotStatus][]LotStatus{
	LotStatusSourced:       {LotStatusListed, LotStatusCancelled},
	LotStatusListed:        {LotStatusPublished, LotStatusCancelled},
	LotStatusPublished:     {LotStatusAuctionClosed, LotStatusReserveNotMet, LotStatusCancelled},
	LotStatusAuctionClosed: {LotStatusPaid, LotStatusPaymentFailed, LotStatusCancelled},
	LotStatusPaid: {
		LotStatusCJOrdered, LotStatusCJOutOfStock, LotStatusCJPriceChanged,
		LotStatusAddressIncomplete, LotStatusCancelled,
	},
	// Поставщик может отменить уже размещённый заказ: лот уходит в ветку возврата.
	LotStatusCJOrdered:         {LotStatusCJPaid, LotStatusCJOutOfStock, LotStatusCancelled},
	LotStatusCJPaid:            {LotStatusShipped, LotStatusCJOutOfStock, LotStatusCancelled},
	LotStatusShipped:           {LotStatusDelivered, LotStatusCancelled},
	LotStatusPaymentFailed:     {LotStatusPaid, LotStatusCancelled},
	LotStatusCJOutOfStock:      {LotStatusCancelled},
	LotStatusCJPriceChanged:    {LotStatusCancelled},
	LotStatusAddressIncomplete: {LotStatusPaid, LotStatusCancelled},
	LotStatusDelivered:         {},
	LotStatusReserveNotMet:     {},
	LotStatusCancelled:         {},
}

// AllLotStatuses возвращает полный перечень статусов (для валидации и тестов).
func AllLotStatuses() []LotStatus {
	return []LotStatus{
		LotStatusSourced, LotStatusListed, LotStatusPublished, LotStatusAuctionClosed,
		LotStatusPaid, LotStatusCJOrdered, LotStatusCJPaid, LotStatusShipped,
		LotStatusDelivered, LotStatusReserveNotMet, LotStatusPaymentFailed,
		LotStatusCJOutOfStock, LotStatusCJPriceChanged, LotStatusAddressIncomplete,
		LotStatusCancelled,
	}
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s LotStatus) Valid() bool {
	_, ok := lotTransitions[s]
	return ok
}

// CanTransitionTo проверяет наличие ребра s → to в графе переходов.
func (s LotStatus) CanTransitionTo(to LotStatus) bool {
	for _, allowed := range lotTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Terminal сообщает, есть ли у статуса исходящие рёбра.
func (s LotStatus) Terminal() bool {
	return len(lotTransitions[s]) == 0
}

// Lot агрегирует состояние одной закупленной единицы товара на всём пути
// закупка → аукцион → оплата → исполнение у поставщика.
type Lot struct {
	ID string

	// Привязка к поставщику.
	SupplierProductID string
	SupplierVariantID string
	// SupplierCostMinor — закупочная цена (товар + доставка) в минимальных единицах валюты.
	SupplierCostMinor int64
	SupplierCarrier   string
	OriginCountry     string
	ImageURLs         []string

	// Привязка к аукциону. Пустые строки, пока лот не заведён на площадке.
	SaleID        string
	AuctionItemID string
	StartBidMinor int64
	// ReserveMinor фиксируется при выставлении и никогда не пересчитывается:
	// риск колебания закупочной цены уже заложен в резерв буфером.
	ReserveMinor int64

	// Итог аукциона. Заполняется ровно один раз при переходе в AUCTION_CLOSED.
	WinnerID        string
	WinningBidMinor int64

	// Платёжная привязка: не более одного активного идентификатора за раз.
	PaymentOrderID string
	InvoiceID      string
	PaidAt         time.Time

	// Исполнение у поставщика: не более одного активного заказа за раз.
	SupplierOrderID     string
	SupplierOrderNumber string
	SupplierOrderStatus string
	Shipping            ShippingAddress
	TrackingNumber      string
	TrackingCarrier     string

	// Финансовый итог. Заполняется после продажи.
	TotalCostMinor int64
	ProfitMinor    int64

	Status       LotStatus
	ErrorMessage string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TransitionTo переводит лот в новый статус строго по графу переходов.
// При недопустимом переходе лот не изменяется и возвращается *InvalidTransitionError.
func (l *Lot) TransitionTo(to LotStatus) error {
	if !to.Valid() {
		return &InvalidTransitionError{From: l.Status, To: to}
	}
	if !l.Status.CanTransitionTo(to) {
		return &InvalidTransitionError{From: l.Status, To: to}
	}
	l.Status = to
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// ValidateInvariants проверяет базовые инварианты лота и возвращает список замечаний.
func (l *Lot) ValidateInvariants() []error {
	var errs []error

	if l.SupplierProductID == "" {
		errs = append(errs, ErrSupplierProductRequired)
	}
	if l.SupplierCostMinor < 0 {
		errs = append(errs, ErrCostNegative)
	}
	if !l.Status.Valid() {
		errs = append(errs, ErrLotStatusUnknown)
	}
	if l.ReserveMinor < 0 || l.StartBidMinor < 0 {
		errs = append(errs, ErrPriceNegative)
	}
	if l.WinningBidMinor < 0 {
		errs = append(errs, ErrWinningBidNegative)
	}

	return errs
}
