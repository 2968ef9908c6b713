package queueing

import "fmt"

// An Item is the payload produced by the demonstration producers.
type Item struct {
	Producer int
	Seq      int
	Half     byte
}

func (i Item) String() string {
	return fmt.Sprintf("P%d-%d%c", i.Producer, i.Seq, i.Half)
}

// MakeItemPair returns the seq-th pair of a producer, "P<id>-<seq>A" and
// "P<id>-<seq>B".
func MakeItemPair(producer, seq int) Pair[Item] {
	return Pair[Item]{
		First:  Item{Producer: producer, Seq: seq, Half: 'A'},
		Second: Item{Producer: producer, Seq: seq, Half: 'B'},
	}
}
