package rules

import "fmt"

// CardType enumerates the seven Boltis card kinds.
type CardType uint8

const (
	CardNumber CardType = iota
	CardSkip
	CardReverse
	CardVoid
	CardStack
	CardStrike
	CardBomb
)

func (t CardType) String() string {
	switch t {
	case CardNumber:
		return "number"
	case CardSkip:
		return "skip"
	case CardReverse:
		return "reverse"
	case CardVoid:
		return "void"
	case CardStack:
		return "stack"
	case CardStrike:
		return "strike"
	case CardBomb:
		return "bomb"
	}
	return fmt.Sprintf("cardtype(%d)", uint8(t))
}

// Element is the card color.
type Element uint8

const (
	ElementFire Element = iota
	ElementWater
	ElementPlant
	ElementThunder
)

const ElementCount = 4

func (e Element) String() string {
	switch e {
	case ElementFire:
		return "fire"
	case ElementWater:
		return "water"
	case ElementPlant:
		return "plant"
	case ElementThunder:
		return "thunder"
	}
	return fmt.Sprintf("element(%d)", uint8(e))
}

// Card is an immutable value object. Number cards carry values 1-9,
// every other type carries 0.
type Card struct {
	Type    CardType `json:"type"`
	Element Element  `json:"element"`
	Value   uint8    `json:"value"`
}

// Valid reports whether the card is one of the 108 deck cards.
func (c Card) Valid() bool {
	if c.Type > CardBomb || c.Element > ElementThunder {
		return false
	}
	if c.Type == CardNumber {
		return c.Value >= 1 && c.Value <= 9
	}
	return c.Value == 0
}

func (c Card) String() string {
	if c.Type == CardNumber {
		return fmt.Sprintf("%s-%d-%s", c.Type, c.Value, c.Element)
	}
	return fmt.Sprintf("%s-%s", c.Type, c.Element)
}
