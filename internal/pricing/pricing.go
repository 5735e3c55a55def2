// Package pricing вычисляет резервную цену с гарантией прибыли и
// психологически выверенную стартовую ставку. Чистые функции без состояния и I/O.
package pricing

import (
	"errors"
	"math"
)

var (
	// ErrNegativeCost — закупочные составляющие не могут быть отрицательными.
	ErrNegativeCost = errors.New("pricing: cost components must be non-negative")
	// ErrInvalidFees — ставки комиссий вне допустимых границ.
	ErrInvalidFees = errors.New("pricing: fee schedule out of range")
)

// FeeSchedule описывает комиссии и страховые коэффициенты, входящие в резерв.
type FeeSchedule struct {
	// BuyerPremium — процентная надбавка площадки к hammer price (доп. выручка).
	BuyerPremium float64
	// ProcessorPct и ProcessorFixedMinor — комиссия платёжного провайдера.
	ProcessorPct        float64
	ProcessorFixedMinor int64
	// FluctuationBuffer — насколько закупочная цена может вырасти до размещения
	// заказа, прежде чем сработает guard и лот уйдёт в CJ_PRICE_CHANGED.
	FluctuationBuffer float64
	// SafetyMargin — целевая минимальная маржа поверх худшего сценария.
	SafetyMargin float64
}

// DefaultFees возвращает рабочий набор комиссий пайплайна.
func DefaultFees() FeeSchedule {
	return FeeSchedule{
		BuyerPremium:        0.15,
		ProcessorPct:        0.029,
		ProcessorFixedMinor: 30,
		FluctuationBuffer:   0.20,
		SafetyMargin:        0.05,
	}
}

// Input — исходные данные расчёта для одной единицы товара.
type Input struct {
	ProductCostMinor  int64
	ShippingCostMinor int64
	// RetailMinor — рекомендованная розничная цена поставщика; 0, если неизвестна.
	RetailMinor int64
	Fees        FeeSchedule
}

// Quote — результат расчёта. Диагностические поля (break-even, markup)
// предназначены для логов и алертов, не для управления потоком.
type Quote struct {
	TotalCostMinor          int64
	ReserveMinor            int64
	StartBidMinor           int64
	BreakEvenMinor          int64
	WorstCaseNetProfitMinor int64
	MarkupRatio             float64
}

// Compute вычисляет резерв и стартовую ставку.
//
// Резерв гарантирует неотрицательную прибыль даже в худшем случае, когда
// закупочная цена выросла на FluctuationBuffer до размещения заказа:
//
//	reserve = ceil( [C*(1+F)*(1+M) + S_fix] / [(1+BP)*(1-S_pct)] )
//
// Округление всегда вверх, никогда вниз.
func Compute(in Input) (Quote, error) {
	if in.ProductCostMinor < 0 || in.ShippingCostMinor < 0 || in.RetailMinor < 0 {
		return Quote{}, ErrNegativeCost
	}
	f := in.Fees
	if f.BuyerPremium < 0 || f.ProcessorPct < 0 || f.ProcessorPct >= 1 ||
		f.ProcessorFixedMinor < 0 || f.FluctuationBuffer < 0 || f.SafetyMargin < 0 {
		return Quote{}, ErrInvalidFees
	}

	cost := in.ProductCostMinor + in.ShippingCostMinor

	reserve := grossUpMinor(cost, f, f.FluctuationBuffer, f.SafetyMargin)
	breakEven := grossUpMinor(cost, f, 0, 0)

	// Чистая выручка при продаже ровно по резерву и худшей закупочной цене.
	worst := float64(reserve)*(1+f.BuyerPremium)*(1-f.ProcessorPct) -
		float64(f.ProcessorFixedMinor) -
		float64(cost)*(1+f.FluctuationBuffer)
	worstMinor := int64(math.Floor(worst + 1e-9))

	markup := 0.0
	if cost > 0 {
		markup = float64(reserve) / float64(cost)
	}

	return Quote{
		TotalCostMinor:          cost,
		ReserveMinor:            reserve,
		StartBidMinor:           StartBid(cost, in.RetailMinor),
		BreakEvenMinor:          breakEven,
		WorstCaseNetProfitMinor: worstMinor,
		MarkupRatio:             markup,
	}, nil
}

// grossUpMinor переводит закупочную цену в hammer price, покрывающую
// комиссии и заданные страховые коэффициенты.
func grossUpMinor(costMinor int64, f FeeSchedule, buffer, margin float64) int64 {
	numerator := float64(costMinor)*(1+buffer)*(1+margin) + float64(f.ProcessorFixedMinor)
	denominator := (1 + f.BuyerPremium) * (1 - f.ProcessorPct)
	return int64(math.Ceil(numerator/denominator - 1e-9))
}

// bidTier — диапазон стартовой ставки в центах для ценового сегмента.
type bidTier struct {
	maxCostMinor int64
	lo, hi       int64
}

var bidTiers = []bidTier{
	{maxCostMinor: 500, lo: 1, hi: 99},
	{maxCostMinor: 1500, lo: 50, hi: 399},
	{maxCostMinor: 3000, lo: 150, hi: 599},
	{maxCostMinor: math.MaxInt64, lo: 300, hi: 999},
}

// StartBid возвращает детерминированную стартовую ставку-якорь для закупочной
// цены costMinor. Одинаковая цена всегда даёт одну и ту же ставку, но ставки
// распределены по диапазону сегмента и никогда не выглядят машинно-круглыми.
// retailMinor ограничивает ставку сверху 15% от розничной цены (0 — нет данных).
func StartBid(costMinor, retailMinor int64) int64 {
	tier := bidTiers[len(bidTiers)-1]
	for _, t := range bidTiers {
		if costMinor <= t.maxCostMinor {
			tier = t
			break
		}
	}

	lo, hi := tier.lo, tier.hi
	if retailMinor > 0 {
		if retailCap := retailMinor * 15 / 100; retailCap < hi {
			hi = retailCap
		}
	}
	if hi < 1 {
		return 1
	}
	if hi < lo {
		lo = 1
	}

	s := stagger(costMinor)
	bid := lo + s*(hi-lo)/99
	return deRound(bid, lo, hi, s)
}

// stagger выводит повторяемое значение 0–99 из закупочной цены через
// целочисленное бит-перемешивание (финализатор splitmix64): изменение цены
// на одну единицу даёт несвязанное значение.
func stagger(costMinor int64) int64 {
	x := uint64(costMinor) * 0x9E3779B97F4A7C15
	x ^= x >> 30
	x *= 0xBF58476D1CE4E5B9
	x ^= x >> 27
	x *= 0x94D049BB133111EB
	x ^= x >> 31
	return int64(x % 100)
}

// deRound уводит ставку с круглых долларовых и полудолларовых границ,
// сдвигая её на небольшое нечётное смещение, выведенное из stagger.
// Смещённая ставка может опуститься чуть ниже нижней границы сегмента:
// некруглость важнее точного попадания в диапазон.
func deRound(bid, lo, hi, s int64) int64 {
	if bid%50 != 0 {
		return bid
	}

	offset := (s%4)*2 + 1 // 1, 3, 5 или 7 — нечётное, с кратного 50 не попасть обратно
	if bid+offset <= hi {
		bid += offset
	} else {
		bid -= offset
	}
	if bid < 1 {
		bid = 1
	}
	return bid
}
