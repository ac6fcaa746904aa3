package cards

// Item is one checklist entry of a card.
type Item struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Card is the stored and wire form of a task card. Timestamps are unix
// seconds. Deadline is nil when the card has none.
type Card struct {
	ID          string `json:"id"`
	OwnerID     string `json:"user_id"`
	OwnerHandle string `json:"username"`
	Title       string `json:"title"`
	Subtitle    string `json:"subtitle"`
	Items       []Item `json:"contents"`
	Public      bool   `json:"public"`
	Deadline    *int64 `json:"deadline"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// FullyCompleted reports whether the card has items and all are done.
func (c Card) FullyCompleted() bool {
	if len(c.Items) == 0 {
		return false
	}
	for _, it := range c.Items {
		if !it.Completed {
			return false
		}
	}
	return true
}

func (c Card) clone() Card {
	out := c
	out.Items = append([]Item(nil), c.Items...)
	if out.Items == nil {
		out.Items = []Item{}
	}
	if c.Deadline != nil {
		d := *c.Deadline
		out.Deadline = &d
	}
	return out
}

// Owner identifies the user a card is created for.
type Owner struct {
	ID     string
	Handle string
}

// ListedCard is a card in a listing. CompletionCount is set for the
// "others" scope only.
type ListedCard struct {
	Card
	CompletionCount *int `json:"completionCount,omitempty"`
}

// RankEntry is one leaderboard row.
type RankEntry struct {
	Username       string `json:"username"`
	CompletedCount int    `json:"completedCount"`
}

// Patch is a partial update. Nil fields are left unchanged. ClearDeadline
// wins over Deadline.
type Patch struct {
	Title         *string
	Subtitle      *string
	Items         *[]Item
	Public        *bool
	Deadline      *int64
	ClearDeadline bool
	UpdatedAt     int64
}

func (p Patch) apply(c *Card) {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Subtitle != nil {
		c.Subtitle = *p.Subtitle
	}
	if p.Items != nil {
		c.Items = append([]Item{}, (*p.Items)...)
	}
	if p.Public != nil {
		c.Public = *p.Public
	}
	switch {
	case p.ClearDeadline:
		c.Deadline = nil
	case p.Deadline != nil:
		d := *p.Deadline
		c.Deadline = &d
	}
	c.UpdatedAt = p.UpdatedAt
}
