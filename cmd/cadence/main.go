// ABOUTME: Entry point for the cadence player
// ABOUTME: Parses CLI flags, plays one file and wires the control server, mDNS and MPRIS
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/cadence/internal/control"
	"github.com/Resonate-Protocol/cadence/internal/discovery"
	"github.com/Resonate-Protocol/cadence/internal/mpris"
	"github.com/Resonate-Protocol/cadence/internal/version"
	"github.com/Resonate-Protocol/cadence/pkg/audio"
	"github.com/Resonate-Protocol/cadence/pkg/audio/output"
	"github.com/Resonate-Protocol/cadence/pkg/player"
)

var (
	file        = flag.String("file", "", "Audio file to play (MP3, FLAC, Ogg Vorbis, Ogg Opus, WAV, raw PCM)")
	raw         = flag.Bool("raw", false, "Treat the file as WAV or headerless PCM instead of an encoded stream")
	rawRate     = flag.Int("raw-rate", 44100, "Sample rate of headerless PCM")
	rawChannels = flag.Int("raw-channels", 2, "Channel count of headerless PCM")
	volume      = flag.Float64("volume", 1.0, "Initial volume (0.0 silences)")
	loop        = flag.Bool("loop", false, "Loop the play range")
	startMs     = flag.Int("start", 0, "Play range start in milliseconds")
	endMs       = flag.Int("end", 0, "Play range end in milliseconds (0 = end of file)")
	sinkName    = flag.String("sink", "oto", "Audio output: oto, malgo or null")
	controlPort = flag.Int("control-port", 0, "WebSocket control port (0 disables)")
	enableMDNS  = flag.Bool("mdns", false, "Advertise the control server via mDNS")
	enableMPRIS = flag.Bool("mpris", false, "Export an MPRIS player on the session bus (linux)")
	discover    = flag.Bool("discover", false, "List cadence players on the network and exit")
	logFile     = flag.String("log-file", "cadence.log", "Log file path (empty logs to stdout only)")
	name        = flag.String("name", "", "Player friendly name (default: hostname-cadence)")
)

func main() {
	flag.Parse()

	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatalf("error opening log file: %v", err)
		}
		defer f.Close()
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	playerName := *name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-cadence", hostname)
	}

	if *discover {
		browse()
		return
	}

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: cadence -file <path> [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(playerName); err != nil {
		log.Fatalf("%v", err)
	}
}

// run plays the file until it completes, fails or a signal arrives
func run(playerName string) error {
	log.Printf("Starting %s: %s", version.String(), playerName)

	sink, err := output.New(*sinkName)
	if err != nil {
		return err
	}

	done := make(chan string, 1)
	finish := func(reason string) {
		select {
		case done <- reason:
		default:
		}
	}

	p := player.New(player.Config{
		Name:    playerName,
		Sink:    sink,
		Volume:  float32(*volume),
		Muted:   *volume == 0,
		Looping: *loop,
		RawFormat: audio.Format{
			Codec:      "pcm",
			SampleRate: *rawRate,
			Channels:   *rawChannels,
			BitDepth:   16,
		},
	})
	defer p.Release()

	var srv *control.Server
	if *controlPort > 0 {
		srv = control.New(control.Config{
			Port:       *controlPort,
			Name:       playerName,
			EnableMDNS: *enableMDNS,
		}, p)
		go func() {
			if err := srv.Start(); err != nil {
				log.Printf("Control server error: %v", err)
			}
		}()
		defer srv.Stop()
	}

	var session *mpris.Session
	if *enableMPRIS {
		session, err = mpris.New(p, playerName)
		if err != nil {
			log.Printf("MPRIS unavailable: %v", err)
			session = nil
		} else {
			defer session.Close()
		}
	}

	p.SetOnStateChange(func(_ *player.Player, prev, next player.State) {
		if srv != nil {
			srv.HandleStateChange(prev, next)
		}
		if session != nil {
			session.HandleStateChange(prev, next)
		}
	})
	p.SetOnPrepared(func(*player.Player) {
		if srv != nil {
			srv.HandlePrepared()
		}
	})
	p.SetOnCompletion(func(*player.Player) {
		if srv != nil {
			srv.HandleCompletion()
			return
		}
		finish("completed")
	})
	p.SetOnError(func(_ *player.Player, what, extra int) {
		log.Printf("Playback error: what=%d extra=%d", what, extra)
		if srv != nil {
			srv.HandleError(what, extra)
			return
		}
		finish("error")
	})

	if err := p.SetDataSource(*file, !*raw); err != nil {
		return err
	}
	p.SetPlayRange(*startMs, *endMs)
	if err := p.Prepare(); err != nil {
		return err
	}
	if p.State() == player.StateError {
		return fmt.Errorf("could not open %s output", *sinkName)
	}
	if err := p.Start(); err != nil {
		return err
	}
	log.Printf("Playing %s (%dms)", *file, p.Duration())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Printf("Received %v signal, shutting down...", sig)
	case reason := <-done:
		log.Printf("Playback %s at %dms", reason, p.CurrentPosition())
	}
	return nil
}

// browse prints players found during one discovery window
func browse() {
	mgr := discovery.NewManager(discovery.Config{})
	mgr.Browse()
	defer mgr.Stop()

	timeout := time.After(4 * time.Second)
	seen := make(map[string]bool)
	for {
		select {
		case info := <-mgr.Players():
			key := fmt.Sprintf("%s:%d", info.Host, info.Port)
			if seen[key] {
				continue
			}
			seen[key] = true
			fmt.Printf("%s\tws://%s%s\n", info.Name, key, info.Path)
		case <-timeout:
			return
		}
	}
}
