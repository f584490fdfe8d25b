package service

import (
	"fmt"
	"sort"
	"sync"

	"yoyaku/internal/domain"
	"yoyaku/internal/models"

	"github.com/rs/zerolog"
)

// ItemService holds the reservable item catalog loaded from configuration.
type ItemService struct {
	logger *zerolog.Logger
	items  []models.Item
	bySlug map[string]models.Item
	mu     sync.RWMutex
}

func NewItemService(items []models.Item, logger *zerolog.Logger) *ItemService {
	s := &ItemService{logger: logger}
	s.Replace(items)
	return s
}

// Replace swaps the catalog, ordered by SortOrder then slug.
func (s *ItemService) Replace(items []models.Item) {
	sorted := append([]models.Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].SortOrder != sorted[j].SortOrder {
			return sorted[i].SortOrder < sorted[j].SortOrder
		}
		return sorted[i].Slug < sorted[j].Slug
	})

	bySlug := make(map[string]models.Item, len(sorted))
	for _, item := range sorted {
		bySlug[item.Slug] = item
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = sorted
	s.bySlug = bySlug
	s.logger.Info().Int("items", len(sorted)).Msg("item catalog loaded")
}

func (s *ItemService) Items() []models.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Item(nil), s.items...)
}

func (s *ItemService) GetItemBySlug(slug string) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.bySlug[slug]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrItemNotFound, slug)
	}
	return &item, nil
}

func (s *ItemService) GetItemByName(name string) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range s.items {
		if item.Name == name {
			return &item, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrItemNotFound, name)
}

// Empty reports whether no catalog is configured, in which case any item
// name is reservable.
func (s *ItemService) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items) == 0
}
