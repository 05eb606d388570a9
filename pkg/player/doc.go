// ABOUTME: Player controller package
// ABOUTME: Public lifecycle API for decoding a file and playing it through a sink
// Package player provides the lifecycle controller for file playback.
//
// A Player moves through ten states (Idle, Initialized, Preparing, Prepared,
// Started, Paused, Stopped, Completed, End, Error). Every operation checks
// the current state first and returns an error matching ErrInvalidState when
// it is not permitted, leaving the state unchanged.
//
// Runtime failures are not returned: the player moves to Error and calls
// OnError with one of the Error* codes. Reset returns it to Idle.
//
// Example:
//
//	p := player.New(player.Config{
//	    Listeners: player.Listeners{
//	        OnCompletion: func(p *player.Player) { log.Printf("done") },
//	    },
//	})
//	err := p.SetDataSource("/path/to/track.flac", true)
//	err = p.Prepare()
//	p.SetPlayRange(10_000, 20_000)
//	err = p.Start()
package player
