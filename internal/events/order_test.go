package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrder_Less(t *testing.T) {
	assert.True(t, Order{Seq: 1, SubSeq: 0}.Less(Order{Seq: 2, SubSeq: 0}))
	assert.True(t, Order{Seq: 1, SubSeq: 0}.Less(Order{Seq: 1, SubSeq: 1}))
	assert.False(t, Order{Seq: 2, SubSeq: 0}.Less(Order{Seq: 1, SubSeq: 5}))
	assert.False(t, Order{Seq: 1, SubSeq: 1}.Less(Order{Seq: 1, SubSeq: 1}))
}

func TestSequencer_NextIsMonotonicAndResetsSubSeq(t *testing.T) {
	s := NewSequencer()

	first := s.Next()
	assert.Equal(t, Order{Seq: 1, SubSeq: 0}, first)

	sub := s.NextSub()
	assert.Equal(t, Order{Seq: 1, SubSeq: 1}, sub)

	sub2 := s.NextSub()
	assert.Equal(t, Order{Seq: 1, SubSeq: 2}, sub2)

	second := s.Next()
	assert.Equal(t, Order{Seq: 2, SubSeq: 0}, second)
}

func TestSequencer_OrdersAreStrictlyIncreasing(t *testing.T) {
	s := NewSequencer()
	var seen []Order
	seen = append(seen, s.Next())
	seen = append(seen, s.NextSub())
	seen = append(seen, s.NextSub())
	seen = append(seen, s.Next())
	seen = append(seen, s.Next())
	seen = append(seen, s.NextSub())

	for i := 1; i < len(seen); i++ {
		assert.True(t, seen[i-1].Less(seen[i]), "expected %+v < %+v", seen[i-1], seen[i])
	}
}
