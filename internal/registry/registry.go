package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"mediameter/internal/models"
	"mediameter/internal/repository"
)

// Entity is the matcher-facing view of a tracked entity: display name plus
// variants already trimmed and deduplicated.
type Entity struct {
	Slug        string
	DisplayName string
	Variants    []string
	MinusWords  []string
	Topics      []string
}

// Snapshot is an immutable view of the registry taken at the start of a
// collection cycle. It is safe to share across concurrently running cycles;
// registry writes always produce a fresh snapshot on the next load.
type Snapshot struct {
	Version  time.Time
	Entities []Entity
}

func (s *Snapshot) Empty() bool {
	return s == nil || len(s.Entities) == 0
}

type Provider struct {
	Repo repository.Repository
}

// Snapshot loads all active entities ordered by slug. Any load error means
// the caller must skip its cycle; matching against a partial registry would
// silently drop mentions.
func (p *Provider) Snapshot(ctx context.Context) (*Snapshot, error) {
	if p == nil || p.Repo == nil {
		return nil, fmt.Errorf("registry: no repository")
	}
	items, err := p.Repo.ListEntities(ctx, repository.ListEntitiesParams{ActiveOnly: true})
	if err != nil {
		return nil, fmt.Errorf("registry snapshot: %w", err)
	}
	snap := &Snapshot{
		Version:  time.Now().UTC(),
		Entities: make([]Entity, 0, len(items)),
	}
	for i := range items {
		snap.Entities = append(snap.Entities, fromModel(&items[i]))
	}
	sort.Slice(snap.Entities, func(i, j int) bool {
		return snap.Entities[i].Slug < snap.Entities[j].Slug
	})
	return snap, nil
}

func fromModel(m *models.Entity) Entity {
	return Entity{
		Slug:        m.Slug,
		DisplayName: strings.TrimSpace(m.DisplayName),
		Variants:    cleanStrings(m.Variants()),
		MinusWords:  cleanStrings(m.MinusWordList()),
		Topics:      cleanStrings(m.TopicList()),
	}
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		key := strings.ToLower(val)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, val)
	}
	return out
}
