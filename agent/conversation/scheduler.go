package conversation

import (
	"math/rand/v2"
	"sync"

	"github.com/BaSui01/roundtable/agent/personality"
	"github.com/BaSui01/roundtable/types"
)

// Turn is one scheduled participant. Err is set when the personality could
// not be resolved; such a turn commits a failure divider instead of output.
type Turn struct {
	Personality personality.Personality
	Err         error
}

// Schedule is the ordered list of turns of one round.
type Schedule struct {
	Turns []Turn

	// Directed is true when the stimulus addressed a single participant.
	Directed bool
}

// Scheduler decides who responds to a stimulus and in what order.
type Scheduler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewScheduler creates a scheduler drawing broadcast orders from src. A nil
// src is seeded randomly.
func NewScheduler(src rand.Source) *Scheduler {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Scheduler{rng: rand.New(src)}
}

// Plan builds the schedule for stimulus. A stimulus addressing a registered
// main participant schedules only that participant. Otherwise every selected
// main participant responds once in a random order. Helper and moderator
// personalities never take part in a round.
func (s *Scheduler) Plan(reg *personality.Registry, selected []string, stimulus types.Message) (*Schedule, error) {
	turns := resolveSelection(reg, selected)
	if len(turns) == 0 {
		return nil, types.NewError(types.ErrEmptyParticipantSet, "no participants selected")
	}

	if addr, ok := DetectAddressee(stimulus.Body, addressable(reg, stimulus.Sender)); ok {
		return &Schedule{Turns: []Turn{{Personality: addr.Personality}}, Directed: true}, nil
	}

	s.mu.Lock()
	s.rng.Shuffle(len(turns), func(i, j int) { turns[i], turns[j] = turns[j], turns[i] })
	s.mu.Unlock()
	return &Schedule{Turns: turns}, nil
}

// FollowUp reports the participant the last agent message of a round hands
// the floor to, if any.
func (s *Scheduler) FollowUp(reg *personality.Registry, msg types.Message) (personality.Personality, bool) {
	if !msg.IsAgent() {
		return personality.Personality{}, false
	}
	addr, ok := DetectAddressee(msg.Body, addressable(reg, msg.Sender))
	return addr.Personality, ok
}

func resolveSelection(reg *personality.Registry, selected []string) []Turn {
	seen := make(map[string]bool, len(selected))
	turns := make([]Turn, 0, len(selected))
	for _, id := range selected {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		p, err := reg.Lookup(id)
		if err != nil {
			turns = append(turns, Turn{Personality: personality.Personality{ID: id, Name: id, Role: personality.RoleMain}, Err: err})
			continue
		}
		if !p.IsMain() {
			continue
		}
		turns = append(turns, Turn{Personality: p})
	}
	return turns
}

// addressable lists the main participants a message from sender may address.
func addressable(reg *personality.Registry, sender string) []personality.Personality {
	mains := reg.Mains()
	out := mains[:0:0]
	for _, p := range mains {
		if p.Name != sender {
			out = append(out, p)
		}
	}
	return out
}
