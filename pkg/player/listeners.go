// ABOUTME: Player callback slots
// ABOUTME: Optional hooks for prepared, completion, error, raw audio and state changes
package player

// Listeners holds the optional player callbacks. Unset slots are ignored.
type Listeners struct {
	// OnPrepared is called once an asynchronous prepare succeeds
	OnPrepared func(p *Player)

	// OnCompletion is called when playback reaches the end of the range
	OnCompletion func(p *Player)

	// OnError is called with an error code pair after a runtime failure
	OnError func(p *Player, what, extra int)

	// OnDataProcess sees every buffer's raw samples before volume is applied.
	// It runs on the playback goroutine and must not block.
	OnDataProcess func(samples []int16, frames int)

	// OnStateChange is called after every transition
	OnStateChange func(p *Player, prev, next State)
}
