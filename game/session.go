package game

import (
	"math/rand"
	"strings"
	"time"

	"chupistica-server/card"
)

// Session is one live game. It is NOT safe for concurrent use: a single room
// actor owns it and serializes every call, so the entity itself carries no
// locks. All mutating operations validate first and mutate only on success;
// a failed call leaves the session untouched.
type Session struct {
	cfg Config
	rng *rand.Rand
	now func() time.Time

	code   string
	hostID string

	participants []string
	deck         *card.Deck

	status    Status
	turnIndex int
	direction int8

	history       []Event
	savedCards    map[string][]SavedCard
	venganzaCards []VenganzaCard
	kingsCount    int
	cupContent    []CupEntry
	rules         map[card.Rank]string

	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
	endReason string
}

type JoinResult struct {
	Participant  string
	Participants []string
	Host         string
}

type LeaveResult struct {
	Participant  string
	Participants []string
	Host         string
	HostChanged  bool
	TurnIndex    int
	Ended        bool
	EndReason    string
}

type StartResult struct {
	StartedAt time.Time
	TurnIndex int
	Current   string
}

type DrawResult struct {
	Card         card.Card
	Outcome      Outcome
	DrawIndex    int
	Ended        bool
	EndReason    string
	TurnIndex    int
	Current      string
	Direction    int8
	Remaining    int
	DroppedSaved *SavedCard
}

type ActivateResult struct {
	Card      card.Card
	Remaining []SavedCard
}

type VenganzaResult struct {
	Card           card.Card
	Owner          string
	Target         string
	RemainingOwned int
}

type EndResult struct {
	Reason  string
	EndedAt time.Time
}

type RulesResult struct {
	Rules map[card.Rank]string
}

// NewSession builds a Waiting session with the host as its only participant.
func NewSession(cfg Config) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	code, _ := ValidateCode(cfg.Code)
	host, _ := ValidatePlayerID(cfg.HostID)

	if cfg.MaxParticipants == 0 {
		cfg.MaxParticipants = MaxParticipantsCap
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	clock := func() time.Time { return now().UTC() }

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	var deck *card.Deck
	if cfg.DeckOverride != nil {
		d, err := card.NewDeckFromCards(cfg.DeckOverride)
		if err != nil {
			return nil, err
		}
		deck = d
	} else {
		deck = card.NewDeck(rng)
	}

	rules := DefaultRules()
	for r, text := range cfg.Rules {
		rules[r] = text
	}

	s := &Session{
		cfg:          cfg,
		rng:          rng,
		now:          clock,
		code:         code,
		hostID:       host,
		participants: []string{host},
		deck:         deck,
		status:       StatusWaiting,
		direction:    DirectionForward,
		savedCards:   map[string][]SavedCard{host: {}},
		rules:        rules,
		createdAt:    clock(),
	}
	return s, nil
}

// Join appends a participant. Only legal while Waiting.
func (s *Session) Join(playerID string) (JoinResult, error) {
	p, err := ValidatePlayerID(playerID)
	if err != nil {
		return JoinResult{}, err
	}
	if s.status != StatusWaiting {
		return JoinResult{}, E(KindWrongState, "cannot join a %s session", s.status)
	}
	if s.isMember(p) {
		return JoinResult{}, E(KindPlayerAlreadyInSession, "player %q already joined", p)
	}
	if len(s.participants) >= s.cfg.MaxParticipants {
		return JoinResult{}, E(KindSessionFull, "session %s already has %d participants", s.code, len(s.participants))
	}

	s.participants = append(s.participants, p)
	s.savedCards[p] = []SavedCard{}
	return JoinResult{
		Participant:  p,
		Participants: s.participantsCopy(),
		Host:         s.hostID,
	}, nil
}

// Leave removes a participant while Waiting or Playing. The host role moves
// to the head of the list. When the last participant leaves, the session ends
// (reason "abandoned") but the record keeps them so the host invariant holds
// until the registry reaps the session.
func (s *Session) Leave(playerID string) (LeaveResult, error) {
	p, err := ValidatePlayerID(playerID)
	if err != nil {
		return LeaveResult{}, err
	}
	if s.status == StatusEnded {
		return LeaveResult{}, E(KindWrongState, "cannot leave an ended session")
	}
	if !s.isMember(p) {
		return LeaveResult{}, E(KindPlayerNotInSession, "player %q is not in session %s", p, s.code)
	}

	if len(s.participants) == 1 {
		s.end(EndReasonAbandoned)
		return LeaveResult{
			Participant:  p,
			Participants: s.participantsCopy(),
			Host:         s.hostID,
			TurnIndex:    s.turnIndex,
			Ended:        true,
			EndReason:    s.endReason,
		}, nil
	}

	kept := make([]string, 0, len(s.participants)-1)
	for _, member := range s.participants {
		if member != p {
			kept = append(kept, member)
		}
	}
	s.participants = kept
	delete(s.savedCards, p)

	hostChanged := false
	if s.hostID == p {
		s.hostID = s.participants[0]
		hostChanged = true
	}
	if s.turnIndex >= len(s.participants) {
		s.turnIndex = 0
	}

	return LeaveResult{
		Participant:  p,
		Participants: s.participantsCopy(),
		Host:         s.hostID,
		HostChanged:  hostChanged,
		TurnIndex:    s.turnIndex,
	}, nil
}

// Start moves Waiting -> Playing. Host only, needs at least two participants.
func (s *Session) Start(playerID string) (StartResult, error) {
	p, err := ValidatePlayerID(playerID)
	if err != nil {
		return StartResult{}, err
	}
	if s.status != StatusWaiting {
		return StartResult{}, E(KindWrongState, "cannot start a %s session", s.status)
	}
	if err := s.requireHost(p); err != nil {
		return StartResult{}, err
	}
	if len(s.participants) < 2 {
		return StartResult{}, E(KindWrongState, "need at least 2 participants to start, have %d", len(s.participants))
	}

	s.status = StatusPlaying
	s.startedAt = s.now()
	s.turnIndex = 0
	s.direction = DirectionForward
	return StartResult{
		StartedAt: s.startedAt,
		TurnIndex: s.turnIndex,
		Current:   s.participants[s.turnIndex],
	}, nil
}

// Draw pops the tail card for the current participant, applies its rule, logs
// the draw and advances the turn - unless the card ends the session (fourth
// king or deck exhaustion), which happens before any turn advance.
func (s *Session) Draw(playerID string) (DrawResult, error) {
	p, err := ValidatePlayerID(playerID)
	if err != nil {
		return DrawResult{}, err
	}
	if s.status != StatusPlaying {
		return DrawResult{}, E(KindWrongState, "cannot draw in a %s session", s.status)
	}
	if !s.isMember(p) {
		return DrawResult{}, E(KindPlayerNotInSession, "player %q is not in session %s", p, s.code)
	}
	if s.participants[s.turnIndex] != p {
		return DrawResult{}, E(KindNotYourTurn, "it is %q's turn", s.participants[s.turnIndex])
	}
	next, ok := s.deck.Peek()
	if !ok {
		return DrawResult{}, E(KindDeckEmpty, "no cards remaining")
	}
	if s.cfg.SavePolicy == SaveReject && isSaveRank(next.Rank()) && len(s.savedCards[p]) >= MaxSavedCards {
		return DrawResult{}, E(KindSaveCapacity, "player %q already holds %d saved cards", p, MaxSavedCards)
	}

	c, _ := s.deck.Draw()
	out := s.outcomeFor(p, c)
	drawIndex := len(s.history)

	var dropped *SavedCard
	switch c.Rank() {
	case card.RankAce:
		s.venganzaCards = append(s.venganzaCards, VenganzaCard{Owner: p, Card: c, DrawIndex: drawIndex})
	case 5, 9:
		held := s.savedCards[p]
		if len(held) >= MaxSavedCards {
			old := held[0]
			dropped = &old
			held = held[1:]
		}
		s.savedCards[p] = append(held, SavedCard{Card: c, DrawIndex: drawIndex})
	case 7:
		s.direction = -s.direction
	case card.RankKing:
		s.kingsCount++
		s.cupContent = append(s.cupContent, CupEntry{Participant: p, King: s.kingsCount, At: s.now()})
	}

	s.history = append(s.history, Event{
		Index:   drawIndex,
		Kind:    HistoryDraw,
		Actor:   p,
		Card:    c,
		Outcome: &out,
		At:      s.now(),
	})

	res := DrawResult{
		Card:         c,
		Outcome:      out,
		DrawIndex:    drawIndex,
		Direction:    s.direction,
		Remaining:    s.deck.Remaining(),
		DroppedSaved: dropped,
	}

	switch {
	case out.EndsSession:
		s.end(EndReasonKingsCup)
	case s.deck.Remaining() == 0:
		s.end(EndReasonDeckExhausted)
	default:
		s.advanceTurn()
		res.Current = s.participants[s.turnIndex]
	}
	res.Ended = s.status == StatusEnded
	res.EndReason = s.endReason
	res.TurnIndex = s.turnIndex
	return res, nil
}

// Activate spends a saved card held by the player. Any participant may
// activate during Playing regardless of whose turn it is; the turn does not
// advance.
func (s *Session) Activate(playerID, cardID string) (ActivateResult, error) {
	p, err := ValidatePlayerID(playerID)
	if err != nil {
		return ActivateResult{}, err
	}
	if s.status != StatusPlaying {
		return ActivateResult{}, E(KindWrongState, "cannot activate in a %s session", s.status)
	}
	if !s.isMember(p) {
		return ActivateResult{}, E(KindPlayerNotInSession, "player %q is not in session %s", p, s.code)
	}
	c, err := card.ParseID(cardID)
	if err != nil {
		return ActivateResult{}, E(KindInvalidCard, "%v", err)
	}

	held := s.savedCards[p]
	at := -1
	for i, sc := range held {
		if sc.Card == c {
			at = i
			break
		}
	}
	if at < 0 {
		return ActivateResult{}, E(KindSavedCardNotFound, "player %q holds no saved card %s", p, c.ID())
	}

	s.savedCards[p] = append(append([]SavedCard{}, held[:at]...), held[at+1:]...)
	s.history = append(s.history, Event{
		Index: len(s.history),
		Kind:  HistorySavedActivate,
		Actor: p,
		Card:  c,
		At:    s.now(),
	})

	return ActivateResult{
		Card:      c,
		Remaining: append([]SavedCard(nil), s.savedCards[p]...),
	}, nil
}

// ConsumeVenganza spends one accrued ace against a target. Only legal after
// the session has ended; the oldest owned entry is consumed first.
func (s *Session) ConsumeVenganza(playerID, targetID string) (VenganzaResult, error) {
	p, err := ValidatePlayerID(playerID)
	if err != nil {
		return VenganzaResult{}, err
	}
	if s.status != StatusEnded {
		return VenganzaResult{}, E(KindWrongState, "venganza is only available once the session has ended")
	}
	target, err := ValidatePlayerID(targetID)
	if err != nil {
		return VenganzaResult{}, err
	}
	if !s.isMember(target) {
		return VenganzaResult{}, E(KindInvalidTargetPlayer, "target %q is not in session %s", target, s.code)
	}

	at := -1
	for i, v := range s.venganzaCards {
		if v.Owner == p {
			at = i
			break
		}
	}
	if at < 0 {
		return VenganzaResult{}, E(KindNoVenganzaAvailable, "player %q has no venganza cards", p)
	}

	spent := s.venganzaCards[at]
	s.venganzaCards = append(append([]VenganzaCard{}, s.venganzaCards[:at]...), s.venganzaCards[at+1:]...)
	s.history = append(s.history, Event{
		Index:  len(s.history),
		Kind:   HistoryVenganzaConsume,
		Actor:  p,
		Card:   spent.Card,
		Target: target,
		At:     s.now(),
	})

	remaining := 0
	for _, v := range s.venganzaCards {
		if v.Owner == p {
			remaining++
		}
	}
	return VenganzaResult{
		Card:           spent.Card,
		Owner:          p,
		Target:         target,
		RemainingOwned: remaining,
	}, nil
}

// End terminates the session. Host only; legal from Waiting (abort) and
// Playing.
func (s *Session) End(playerID, reason string) (EndResult, error) {
	p, err := ValidatePlayerID(playerID)
	if err != nil {
		return EndResult{}, err
	}
	if s.status == StatusEnded {
		return EndResult{}, E(KindWrongState, "session already ended")
	}
	if err := s.requireHost(p); err != nil {
		return EndResult{}, err
	}

	if reason == "" {
		reason = EndReasonHostEnded
	}
	s.end(reason)
	return EndResult{Reason: s.endReason, EndedAt: s.endedAt}, nil
}

// UpdateRules merges rule-text overrides. Host only, Waiting only.
func (s *Session) UpdateRules(playerID string, updates map[card.Rank]string) (RulesResult, error) {
	p, err := ValidatePlayerID(playerID)
	if err != nil {
		return RulesResult{}, err
	}
	if s.status != StatusWaiting {
		return RulesResult{}, E(KindWrongState, "rules are only editable while waiting")
	}
	if err := s.requireHost(p); err != nil {
		return RulesResult{}, err
	}
	if len(updates) == 0 {
		return RulesResult{}, E(KindInvalidRules, "no rule updates given")
	}
	cleaned := make(map[card.Rank]string, len(updates))
	for r, text := range updates {
		if !r.Valid() {
			return RulesResult{}, E(KindInvalidRules, "invalid rank %d", byte(r))
		}
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return RulesResult{}, E(KindInvalidRules, "empty rule text for rank %s", r)
		}
		cleaned[r] = trimmed
	}

	for r, text := range cleaned {
		s.rules[r] = text
	}
	return RulesResult{Rules: s.RulesCopy()}, nil
}

// ResetRules restores the default rule texts. Host only, Waiting only.
func (s *Session) ResetRules(playerID string) (RulesResult, error) {
	p, err := ValidatePlayerID(playerID)
	if err != nil {
		return RulesResult{}, err
	}
	if s.status != StatusWaiting {
		return RulesResult{}, E(KindWrongState, "rules are only editable while waiting")
	}
	if err := s.requireHost(p); err != nil {
		return RulesResult{}, err
	}

	s.rules = DefaultRules()
	return RulesResult{Rules: s.RulesCopy()}, nil
}

func (s *Session) Code() string   { return s.code }
func (s *Session) Host() string   { return s.hostID }
func (s *Session) Status() Status { return s.status }

func (s *Session) Participants() []string { return s.participantsCopy() }

// CurrentParticipant returns the turn holder; ok is false outside Playing.
func (s *Session) CurrentParticipant() (string, bool) {
	if s.status != StatusPlaying {
		return "", false
	}
	return s.participants[s.turnIndex], true
}

func (s *Session) TurnIndex() int    { return s.turnIndex }
func (s *Session) Direction() int8   { return s.direction }
func (s *Session) Remaining() int    { return s.deck.Remaining() }
func (s *Session) KingsCount() int   { return s.kingsCount }
func (s *Session) EndReason() string { return s.endReason }

func (s *Session) History() []Event {
	return append([]Event(nil), s.history...)
}

func (s *Session) SavedCardsOf(playerID string) []SavedCard {
	return append([]SavedCard(nil), s.savedCards[playerID]...)
}

// VenganzaOwned counts unspent venganza entries of one owner.
func (s *Session) VenganzaOwned(playerID string) int {
	n := 0
	for _, v := range s.venganzaCards {
		if v.Owner == playerID {
			n++
		}
	}
	return n
}

func (s *Session) RulesCopy() map[card.Rank]string {
	out := make(map[card.Rank]string, len(s.rules))
	for r, text := range s.rules {
		out[r] = text
	}
	return out
}

func (s *Session) isMember(p string) bool {
	for _, member := range s.participants {
		if member == p {
			return true
		}
	}
	return false
}

func (s *Session) requireHost(p string) error {
	if !s.isMember(p) {
		return E(KindPlayerNotInSession, "player %q is not in session %s", p, s.code)
	}
	if p != s.hostID {
		return E(KindNotHost, "player %q is not the host", p)
	}
	return nil
}

func (s *Session) participantsCopy() []string {
	return append([]string(nil), s.participants...)
}

func (s *Session) advanceTurn() {
	n := len(s.participants)
	s.turnIndex = ((s.turnIndex+int(s.direction))%n + n) % n
}

func (s *Session) end(reason string) {
	s.status = StatusEnded
	s.endedAt = s.now()
	s.endReason = reason
}

func isSaveRank(r card.Rank) bool {
	return r == 5 || r == 9
}
