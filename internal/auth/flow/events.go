package flow

// Lifecycle event names delivered to subscribers. The redirect pair keeps the
// hosted SDK's hub names so log output lines up with provider documentation.
const (
	EventAwaitingConfirmation = "awaitingConfirmation"
	EventConfirmed            = "signUpConfirmed"
	EventSignedIn             = "signedIn"
	EventChallengeRequired    = "challengeRequired"
	EventChallengeSelected    = "challengeSelected"
	EventSignedOut            = "signedOut"
	EventRedirectStarted      = "signInWithRedirect"
	EventRedirectFailed       = "signInWithRedirect_failure"
	EventFactorSetupStarted   = "factorSetupStarted"
	EventFactorVerified       = "factorVerified"
)

// Event is delivered synchronously to every subscriber whenever the state
// machine transitions or a named lifecycle step occurs.
type Event struct {
	Name  string
	State string
}

type subscriber struct {
	id int
	fn func(Event)
}

// Subscribe registers fn for lifecycle events. Subscribers are invoked
// synchronously, in registration order, from the goroutine running the
// operation. The returned handle removes the subscription.
func (c *Controller) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs = append(c.subs, subscriber{id: id, fn: fn})
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		for i, s := range c.subs {
			if s.id == id {
				c.subs = append(c.subs[:i], c.subs[i+1:]...)
				return
			}
		}
	}
}

func (c *Controller) notify(name string) {
	state := c.sessionState().String()

	c.subMu.Lock()
	subs := make([]subscriber, len(c.subs))
	copy(subs, c.subs)
	c.subMu.Unlock()

	ev := Event{Name: name, State: state}
	for _, s := range subs {
		s.fn(ev)
	}
}
