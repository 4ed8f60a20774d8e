package cli

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wzin/concord/internal/client"
	"github.com/wzin/concord/internal/config"
	"github.com/wzin/concord/internal/mesh"
	"github.com/wzin/concord/internal/protocol"
)

var joinOpts struct {
	server   string
	username string
	stun     string
	turn     string
	turnUser string
	turnPass string
}

var joinCmd = &cobra.Command{
	Use:   "join <room-id>",
	Short: "Join a room and connect to every participant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadClient(config.ClientOptions{
			ServerURL:  joinOpts.server,
			STUNServer: joinOpts.stun,
			TURNServer: joinOpts.turn,
			TURNUser:   joinOpts.turnUser,
			TURNPass:   joinOpts.turnPass,
		})
		return runJoin(cfg, args[0], joinOpts.username)
	},
}

func init() {
	joinCmd.Flags().StringVar(&joinOpts.server, "server", "", "relay websocket URL")
	joinCmd.Flags().StringVarP(&joinOpts.username, "username", "u", "", "display name")
	joinCmd.Flags().StringVar(&joinOpts.stun, "stun", "", "STUN server URL")
	joinCmd.Flags().StringVar(&joinOpts.turn, "turn", "", "TURN server URL")
	joinCmd.Flags().StringVar(&joinOpts.turnUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&joinOpts.turnPass, "turn-pass", "", "TURN password")
	rootCmd.AddCommand(joinCmd)
}

func runJoin(cfg *config.Client, roomID, username string) error {
	sig := client.New(cfg.ServerURL)
	if err := sig.Connect(); err != nil {
		return err
	}
	defer sig.Close()

	names := newNameTable()

	orc := mesh.New(sig, mesh.NewPionFactory(cfg), slog.Default(), nil)
	defer orc.Close()
	orc.OnPeerSpeaking(func(remote string, speaking bool) {
		if speaking {
			fmt.Printf("* %s is speaking\n", names.lookup(remote))
		}
	})

	joinEnv, err := protocol.NewEnvelope(protocol.TypeJoin, protocol.Join{
		RoomID:   roomID,
		Username: username,
		MediaTag: uuid.NewString(),
	})
	if err != nil {
		return err
	}
	if err := sig.Send(joinEnv); err != nil {
		return err
	}

	go readInput(sig, orc)

	for env := range sig.Incoming() {
		switch env.Type {
		case protocol.TypeJoinConfirmed:
			var p protocol.JoinConfirmed
			if err := env.Decode(&p); err != nil {
				continue
			}
			for _, other := range p.Others {
				names.set(other.Identity, other.Username)
			}
			fmt.Printf("joined room %s (%d others, creator=%t)\n", roomID, len(p.Others), p.IsCreator)
			orc.Dispatch(env)

		case protocol.TypeParticipantJoined:
			var p protocol.ParticipantJoined
			if err := env.Decode(&p); err != nil {
				continue
			}
			names.set(p.Identity, p.Username)
			fmt.Printf("* %s joined\n", p.Username)

		case protocol.TypeChatReceived:
			var p protocol.ChatReceived
			if err := env.Decode(&p); err != nil {
				continue
			}
			fmt.Printf("<%s> %s\n", p.Username, p.Text)

		case protocol.TypeParticipantMuted:
			var p protocol.ParticipantMuted
			if err := env.Decode(&p); err != nil {
				continue
			}
			state := "unmuted"
			if p.Muted {
				state = "muted"
			}
			fmt.Printf("* %s is now %s\n", names.lookup(p.Identity), state)

		case protocol.TypeParticipantLeft:
			var p protocol.ParticipantLeft
			if err := env.Decode(&p); err == nil {
				fmt.Printf("* %s left\n", names.lookup(p.Identity))
				names.forget(p.Identity)
			}
			orc.Dispatch(env)

		case protocol.TypeParticipantKicked:
			var p protocol.ParticipantKicked
			if err := env.Decode(&p); err == nil {
				fmt.Printf("* %s was kicked\n", names.lookup(p.Identity))
				names.forget(p.Identity)
			}
			orc.Dispatch(env)

		case protocol.TypeYouWereKicked:
			fmt.Println("you were kicked from the room")
			return nil

		case protocol.TypeProtocolError:
			var p protocol.ProtocolError
			if err := env.Decode(&p); err == nil {
				fmt.Fprintln(os.Stderr, "rejected:", p.Message)
			}

		case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
			orc.Dispatch(env)
		}
	}

	fmt.Println("disconnected")
	return nil
}

// readInput turns stdin lines into chat messages, with /mute and /unmute as
// local commands.
func readInput(sig *client.Client, orc *mesh.Orchestrator) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue

		case "/mute", "/unmute":
			muted := line == "/mute"
			env, err := protocol.NewEnvelope(protocol.TypeSetMuted, protocol.SetMuted{Muted: muted})
			if err != nil {
				continue
			}
			if err := sig.Send(env); err != nil {
				return
			}
			orc.BroadcastControl(mesh.ControlMessage{Muted: muted})

		default:
			env, err := protocol.NewEnvelope(protocol.TypeChatSend, protocol.ChatSend{Text: line})
			if err != nil {
				continue
			}
			if err := sig.Send(env); err != nil {
				return
			}
		}
	}
}
