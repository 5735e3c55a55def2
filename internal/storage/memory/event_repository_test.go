package memory

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/dropship/internal/domain"
)

func TestProcessedEventRepository_InsertIfAbsent(t *testing.T) {
	repo := NewProcessedEventRepository()

	event := domain.ProcessedEvent{Source: domain.EventSourcePayment, Key: "evt-1"}
	if err := repo.Insert(event); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if err := repo.Insert(event); !errors.Is(err, domain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected ErrEventAlreadyProcessed, got %v", err)
	}

	// Одинаковый ключ от другого источника — отдельная запись.
	event.Source = domain.EventSourceSupplier
	if err := repo.Insert(event); err != nil {
		t.Fatalf("insert for other source: %v", err)
	}
}

func TestProcessedEventRepository_Validation(t *testing.T) {
	repo := NewProcessedEventRepository()

	if err := repo.Insert(domain.ProcessedEvent{Source: domain.EventSourcePayment, Key: "  "}); !errors.Is(err, domain.ErrEventKeyRequired) {
		t.Fatalf("expected ErrEventKeyRequired, got %v", err)
	}
	if err := repo.Insert(domain.ProcessedEvent{Source: "mail", Key: "evt"}); !errors.Is(err, domain.ErrEventSourceRequired) {
		t.Fatalf("expected ErrEventSourceRequired, got %v", err)
	}
}

// Конкурентная вставка одного ключа: ровно один победитель.
func TestProcessedEventRepository_ConcurrentInsertSingleWinner(t *testing.T) {
	repo := NewProcessedEventRepository()

	const workers = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Insert(domain.ProcessedEvent{Source: domain.EventSourcePayment, Key: "contended"})
			if err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	if got := len(wins); got != 1 {
		t.Fatalf("expected exactly one successful insert, got %d", got)
	}
}

func TestProcessedEventRepository_DeleteExpired(t *testing.T) {
	repo := NewProcessedEventRepository()
	now := time.Now().UTC()

	expired := domain.ProcessedEvent{Source: domain.EventSourcePayment, Key: "old", TTLAt: now.Add(-time.Hour)}
	alive := domain.ProcessedEvent{Source: domain.EventSourcePayment, Key: "new", TTLAt: now.Add(time.Hour)}
	for _, e := range []domain.ProcessedEvent{expired, alive} {
		if err := repo.Insert(e); err != nil {
			t.Fatalf("insert %s: %v", e.Key, err)
		}
	}

	removed, err := repo.DeleteExpired(now, 100)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}

	// Живая запись всё ещё блокирует повторную вставку.
	if err := repo.Insert(alive); !errors.Is(err, domain.ErrEventAlreadyProcessed) {
		t.Fatalf("alive record must survive cleanup, got %v", err)
	}
	// Удалённый ключ снова свободен.
	if err := repo.Insert(expired); err != nil {
		t.Fatalf("expired key must be reusable: %v", err)
	}
}
