package card

const CardInvalid Card = 0

// Hearts
const (
	CardHeartA Card = iota + 0x01
	CardHeart2
	CardHeart3
	CardHeart4
	CardHeart5
	CardHeart6
	CardHeart7
	CardHeart8
	CardHeart9
	CardHeart10
	CardHeartJ
	CardHeartQ
	CardHeartK
)

// Diamonds
const (
	CardDiamondA Card = iota + 0x11
	CardDiamond2
	CardDiamond3
	CardDiamond4
	CardDiamond5
	CardDiamond6
	CardDiamond7
	CardDiamond8
	CardDiamond9
	CardDiamond10
	CardDiamondJ
	CardDiamondQ
	CardDiamondK
)

// Clubs
const (
	CardClubA Card = iota + 0x21
	CardClub2
	CardClub3
	CardClub4
	CardClub5
	CardClub6
	CardClub7
	CardClub8
	CardClub9
	CardClub10
	CardClubJ
	CardClubQ
	CardClubK
)

// Spades
const (
	CardSpadeA Card = iota + 0x31
	CardSpade2
	CardSpade3
	CardSpade4
	CardSpade5
	CardSpade6
	CardSpade7
	CardSpade8
	CardSpade9
	CardSpade10
	CardSpadeJ
	CardSpadeQ
	CardSpadeK
)
