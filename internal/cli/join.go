package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/BhargavShekhar/meet-p2p/internal/call"
	"github.com/BhargavShekhar/meet-p2p/internal/config"
	"github.com/BhargavShekhar/meet-p2p/internal/media"
	"github.com/BhargavShekhar/meet-p2p/internal/roomcode"
	"github.com/BhargavShekhar/meet-p2p/internal/rtc"
	"github.com/BhargavShekhar/meet-p2p/internal/signalclient"
	"github.com/BhargavShekhar/meet-p2p/internal/ui"
)

var (
	flagJoinServer   string
	flagJoinLabel    string
	flagJoinSTUN     string
	flagJoinTURN     string
	flagJoinTURNUser string
	flagJoinTURNPass string
	flagJoinRelay    bool
)

var joinCmd = &cobra.Command{
	Use:     "join [room-code]",
	Aliases: []string{"j"},
	Short:   "Join a room and call whoever is there",
	Long: `Join a room on the signaling server. The first member waits; each later
arrival is called automatically by the members already present.

Examples:
  meet join cozy-otter-ember
  meet join --label alice my-room
  meet join                          (generates a room code to share)`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().StringVar(&flagJoinServer, "server", "", "signaling server websocket URL")
	joinCmd.Flags().StringVar(&flagJoinLabel, "label", "", "display label shown to peers (defaults to hostname)")
	joinCmd.Flags().StringVar(&flagJoinSTUN, "stun", "", "STUN server URL")
	joinCmd.Flags().StringVar(&flagJoinTURN, "turn", "", "TURN server URL")
	joinCmd.Flags().StringVar(&flagJoinTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagJoinTURNPass, "turn-pass", "", "TURN password")
	joinCmd.Flags().BoolVar(&flagJoinRelay, "relay", false, "force relayed (TURN) connectivity")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.Options{
		ServerURL:  flagJoinServer,
		STUNServer: flagJoinSTUN,
		TURNServer: flagJoinTURN,
		TURNUser:   flagJoinTURNUser,
		TURNPass:   flagJoinTURNPass,
		ForceRelay: flagJoinRelay,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	roomCode := ""
	if len(args) == 1 {
		roomCode = args[0]
	}
	if roomCode == "" {
		roomCode = roomcode.Generate()
		ui.PrintInfo("No room code given, generated one for you. Share it with your peer:")
	}

	label := flagJoinLabel
	if label == "" {
		if host, err := os.Hostname(); err == nil {
			label = host
		} else {
			label = "guest"
		}
	}

	client := signalclient.NewClient(cfg.ServerURL)
	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect to server: %w", err)
	}
	defer client.Close()

	handler := signalclient.NewHandler(client.Incoming())
	go handler.Start()

	transports, err := rtc.NewFactory(cfg)
	if err != nil {
		return fmt.Errorf("prepare webrtc: %w", err)
	}

	mgr := call.NewManager(slog.Default(), client, handler, transports, media.SyntheticCapturer{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// The manager gets its own context: on interrupt it must stay up long
	// enough to flush hang-up notifications before the link closes.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go mgr.Run(runCtx)

	ui.PrintRoomBanner(roomCode)
	mgr.Join(label, roomCode)

	for {
		select {
		case <-ctx.Done():
			mgr.HangUp()
			cancelRun()
			<-mgr.Done()
			ui.PrintInfo(ui.IconEnd + " Leaving the room")
			return nil

		case <-mgr.Done():
			return nil

		case e := <-mgr.Events():
			printEvent(e)
		}
	}
}

func printEvent(e call.Event) {
	switch ev := e.(type) {
	case call.RoomJoinedEvent:
		ui.PrintSuccessf("Joined room %q as %q, waiting for peers...", ev.RoomCode, ev.Label)

	case call.PeerJoinedEvent:
		ui.PrintInfof("%s %s joined, calling...", ui.IconPeer, ev.Label)

	case call.SessionStateEvent:
		switch ev.State {
		case call.StateConnected:
			ui.PrintSuccessf("%s Connected to %s", ui.IconConnect, ev.PeerID)
		case call.StateEnded:
			ui.PrintInfof("%s Call with %s ended (%s)", ui.IconEnd, ev.PeerID, ev.Reason)
		}

	case call.RemoteTrackEvent:
		ui.PrintInfof("Receiving %s from %s", ev.Media.Kind, ev.PeerID)

	case call.ScreenShareEvent:
		if ev.Active {
			ui.PrintInfo(ui.IconScreen + " Screen sharing started")
		} else {
			ui.PrintInfo(ui.IconScreen + " Screen sharing stopped")
		}

	case call.LinkLostEvent:
		ui.PrintWarning("Lost connection to the signaling server")

	case call.ErrorEvent:
		ui.PrintError(ev.Err.Error())
	}
}
