package queue

import (
	"math/rand/v2"
	"strings"
)

// Split breaks a comma separated recipient list into its entries. Order is
// kept and duplicates are not removed.
func Split(raw string) []string {
	return strings.Split(raw, ",")
}

type Builder struct {
	shuffle func(n int, swap func(i, j int))
}

func NewBuilder() *Builder {
	return &Builder{shuffle: rand.Shuffle}
}

// WithShuffle replaces the shuffle source, mostly for tests.
func (b *Builder) WithShuffle(shuffle func(n int, swap func(i, j int))) *Builder {
	b.shuffle = shuffle
	return b
}

// Build repeats recipients loop times. With randomOrder the recipients are
// shuffled once and that seating order is reused for every repetition.
func (b *Builder) Build(recipients []string, loop int, randomOrder bool) []string {
	if loop < 1 || len(recipients) == 0 {
		return []string{}
	}

	order := make([]string, len(recipients))
	copy(order, recipients)
	if randomOrder {
		b.shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}

	out := make([]string, 0, len(order)*loop)
	for range loop {
		out = append(out, order...)
	}
	return out
}
