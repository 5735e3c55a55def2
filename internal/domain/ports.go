package domain

import "time"

// CatalogQuery задаёт ограничения выборки товаров-кандидатов у поставщика.
type CatalogQuery struct {
	Keyword string
	// MaxCostMinor — верхняя граница закупочной цены (товар + доставка).
	MaxCostMinor int64
	Limit        int
}

// CatalogProduct — товар из каталога поставщика, кандидат на закупку.
type CatalogProduct struct {
	ProductID string
	VariantID string
	Name      string
	// CostMinor и ShippingMinor — составляющие закупочной цены.
	CostMinor     int64
	ShippingMinor int64
	// RetailMinor — рекомендованная розничная цена поставщика; 0, если неизвестна.
	RetailMinor   int64
	Carrier       string
	OriginCountry string
	ImageURLs     []string
}

// SupplierOrderRequest — запрос на размещение заказа у поставщика.
type SupplierOrderRequest struct {
	LotID     string
	ProductID string
	VariantID string
	Address   ShippingAddress
}

// SupplierOrder — результат успешного размещения заказа у поставщика.
type SupplierOrder struct {
	OrderID     string
	OrderNumber string
	Status      string
}

// SupplierService описывает взаимодействие с fulfillment-API поставщика.
type SupplierService interface {
	// QueryProducts возвращает товары-кандидаты под ограничения запроса.
	QueryProducts(query CatalogQuery) ([]CatalogProduct, error)
	// PlaceOrder размещает заказ. Перманентные отказы возвращаются как
	// ErrSupplierOutOfStock / ErrSupplierPriceChanged, остальное считается временным.
	PlaceOrder(req SupplierOrderRequest) (SupplierOrder, error)
}

// InvoiceLine — позиция счёта с метаданными, привязывающими её к лоту.
type InvoiceLine struct {
	LotID       string
	Description string
	AmountMinor int64
}

// Invoice — счёт платёжного провайдера с развёрнутыми позициями.
type Invoice struct {
	ID          string
	SaleID      string
	BuyerID     string
	AmountMinor int64
	Lines       []InvoiceLine
	// Shipping — адрес, который провайдер собрал при оплате (fallback-источник).
	Shipping    ShippingAddress
	HasShipping bool
}

// PaymentGateway описывает взаимодействие с платёжным провайдером.
type PaymentGateway interface {
	// GetInvoice возвращает счёт с развёрнутыми позициями: провайдеры иногда
	// не кладут метаданные позиций в сам webhook-payload.
	GetInvoice(invoiceID string) (Invoice, error)
	// Refund инициирует полный возврат по платёжной записи.
	Refund(paymentOrderID string, amountMinor int64, reason string) error
}

// ListingRequest — заявка на создание лота на аукционной площадке.
type ListingRequest struct {
	LotID         string
	Title         string
	Description   string
	StartBidMinor int64
	ReserveMinor  int64
	ImageURLs     []string
}

// Listing — идентификаторы созданного на площадке лота.
type Listing struct {
	SaleID string
	ItemID string
}

// ClosedSale — итог закрытой продажи, полученный при опросе площадки.
type ClosedSale struct {
	SaleID      string
	ItemID      string
	WinnerID    string
	HammerMinor int64
	ReserveMet  bool
	ClosedAt    time.Time
}

// AuctionPlatform описывает взаимодействие с аукционной площадкой.
type AuctionPlatform interface {
	CreateListing(req ListingRequest) (Listing, error)
	PublishListing(saleID string) error
	// QueryClosedSales возвращает продажи, закрытые после указанного момента.
	QueryClosedSales(since time.Time) ([]ClosedSale, error)
}

// BuyerDirectory отдаёт сохранённый профильный адрес покупателя.
// Профильный адрес имеет приоритет над адресом из платёжного провайдера.
type BuyerDirectory interface {
	// ShippingAddress возвращает ErrAddressNotFound, если адрес не сохранён.
	ShippingAddress(buyerID string) (ShippingAddress, error)
}

// Alerter принимает критические уведомления. Fire-and-forget: ошибки доставки
// логируются, но никогда не прерывают обработку.
type Alerter interface {
	Critical(subject, detail string)
}

// OutboxMessage хранит данные публикуемого уведомления/алерта.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}
