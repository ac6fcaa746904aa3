package cards

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"todolist/cmd/identity/ids"
)

// Listing scopes accepted by List.
const (
	ScopeMine   = "mine"
	ScopeMy     = "my"
	ScopeOthers = "others"
)

// changeScope is the scope of every change notification; clients refetch
// all lists they show.
const changeScope = "any"

// Notifier receives a change hint after every successful write.
type Notifier interface {
	Notify(scope string)
}

// CreateInput is the decoded body of a create request. Items and Deadline
// stay raw so their loose formats are normalized here.
type CreateInput struct {
	Title    string          `json:"title"`
	Subtitle string          `json:"subtitle"`
	Items    json.RawMessage `json:"contents"`
	Public   bool            `json:"public"`
	Deadline json.RawMessage `json:"deadline"`
}

// UpdateInput is the decoded body of an update request. Nil or empty fields
// were not present in the request.
type UpdateInput struct {
	Title    *string         `json:"title"`
	Subtitle *string         `json:"subtitle"`
	Items    json.RawMessage `json:"contents"`
	Public   *bool           `json:"public"`
	Deadline json.RawMessage `json:"deadline"`
}

type Service struct {
	repo   Repository
	notify Notifier
	loc    *time.Location
	log    *slog.Logger
}

type Option func(*Service)

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notify = n }
}

// WithLocation sets the zone datetime-local deadlines are read in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func NewService(repo Repository, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("cards: nil repository")
	}
	s := &Service{repo: repo, loc: time.Local, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Service) Create(ctx context.Context, now time.Time, owner Owner, in CreateInput) (Card, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Card{}, ValidationError{Field: "title", Msg: "title is required"}
	}
	items, err := ParseItems(in.Items)
	if err != nil {
		return Card{}, err
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return Card{}, err
	}

	ts := now.Unix()
	c := Card{
		ID:          id,
		OwnerID:     owner.ID,
		OwnerHandle: owner.Handle,
		Title:       title,
		Subtitle:    strings.TrimSpace(in.Subtitle),
		Items:       items,
		Public:      in.Public,
		Deadline:    ParseDeadline(in.Deadline, s.loc),
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	if err := s.repo.Insert(ctx, c); err != nil {
		s.log.Error("cards.create.fail", "user_id", owner.ID, "err", err)
		return Card{}, storeErr(err)
	}
	s.changed("create", c.ID)
	return c, nil
}

// List returns the requester's own cards for ScopeMine/ScopeMy and other
// users' public cards, annotated with their owner's completion count, for
// ScopeOthers. An empty scope means ScopeMine.
func (s *Service) List(ctx context.Context, requesterID, scope string) ([]ListedCard, error) {
	switch scope {
	case "", ScopeMine, ScopeMy:
		cs, err := s.repo.ListByOwner(ctx, requesterID)
		if err != nil {
			return nil, storeErr(err)
		}
		return listed(cs, nil), nil

	case ScopeOthers:
		cs, err := s.repo.ListPublicExcept(ctx, requesterID)
		if err != nil {
			return nil, storeErr(err)
		}
		stats, err := s.repo.CompletionStats(ctx)
		if err != nil {
			return nil, storeErr(err)
		}
		return listed(cs, stats), nil
	}
	return nil, ValidationError{Field: "scope", Msg: "unknown scope " + scope}
}

func listed(cs []Card, stats map[string]int) []ListedCard {
	out := make([]ListedCard, len(cs))
	for i, c := range cs {
		out[i] = ListedCard{Card: c}
		if stats != nil {
			n := stats[c.OwnerHandle]
			out[i].CompletionCount = &n
		}
	}
	return out
}

// Update applies the fields present in in to the requester's card id.
func (s *Service) Update(ctx context.Context, now time.Time, requesterID, id string, in UpdateInput) (Card, error) {
	if !ids.Valid(id) {
		return Card{}, ErrNotFound
	}
	p := Patch{UpdatedAt: now.Unix()}

	if in.Title != nil {
		t := strings.TrimSpace(*in.Title)
		if t == "" {
			return Card{}, ValidationError{Field: "title", Msg: "title is required"}
		}
		p.Title = &t
	}
	if in.Subtitle != nil {
		st := strings.TrimSpace(*in.Subtitle)
		p.Subtitle = &st
	}
	if !isNull(in.Items) {
		items, err := ParseItems(in.Items)
		if err != nil {
			return Card{}, err
		}
		p.Items = &items
	}
	p.Public = in.Public

	switch {
	case isEmptyString(in.Deadline):
		p.ClearDeadline = true
	case truthy(in.Deadline):
		// An unparseable deadline is stored as absent.
		if d := ParseDeadline(in.Deadline, s.loc); d != nil {
			p.Deadline = d
		} else {
			p.ClearDeadline = true
		}
	}

	c, err := s.repo.UpdateOwned(ctx, id, requesterID, p)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Error("cards.update.fail", "card_id", id, "err", err)
		}
		return Card{}, storeErr(err)
	}
	s.changed("update", id)
	return c, nil
}

func (s *Service) Delete(ctx context.Context, requesterID, id string) error {
	if !ids.Valid(id) {
		return ErrNotFound
	}
	if err := s.repo.DeleteOwned(ctx, id, requesterID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.log.Error("cards.delete.fail", "card_id", id, "err", err)
		}
		return storeErr(err)
	}
	s.changed("delete", id)
	return nil
}

func (s *Service) CompletionStats(ctx context.Context) (map[string]int, error) {
	stats, err := s.repo.CompletionStats(ctx)
	return stats, storeErr(err)
}

// Ranking orders users by completed public cards, most first, then by
// handle.
func (s *Service) Ranking(ctx context.Context) ([]RankEntry, error) {
	stats, err := s.CompletionStats(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RankEntry, 0, len(stats))
	for h, n := range stats {
		out = append(out, RankEntry{Username: h, CompletedCount: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CompletedCount != out[j].CompletedCount {
			return out[i].CompletedCount > out[j].CompletedCount
		}
		return out[i].Username < out[j].Username
	})
	return out, nil
}

func (s *Service) changed(op, id string) {
	s.log.Debug("cards.changed", "op", op, "card_id", id)
	if s.notify != nil {
		s.notify.Notify(changeScope)
	}
}
